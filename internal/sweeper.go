package internal

import (
	"log/slog"
	"sync"
	"time"
)

// Sweeper 清理器
//
// 唯一回收「未發送顯式斷線就消失的客戶端」的機制：
// 定期掃描所有房間，刪除過期空房間，強制移除超時玩家並廣播
// player-timeout。與調度器共享同一個房間註冊表。
type Sweeper struct {
	registry      *Registry
	interval      time.Duration
	roomTimeout   time.Duration
	playerTimeout time.Duration
	logger        *slog.Logger
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// NewSweeper 創建清理器
func NewSweeper(registry *Registry, cfg *Config, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		registry:      registry,
		interval:      cfg.Cleanup.Interval,
		roomTimeout:   cfg.Cleanup.RoomTimeout,
		playerTimeout: cfg.Cleanup.PlayerTimeout,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

// Start 啟動清理迴圈
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Stop 停止清理器並等待迴圈退出
func (s *Sweeper) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("清理器已停止")
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stopCh:
			return
		}
	}
}

// Sweep 執行一輪清理（公開供測試使用）
func (s *Sweeper) Sweep() {
	var expired []string

	s.registry.ForEachRoom(func(room *Room) {
		// 超時玩家：強制移除並通知房間
		for _, p := range room.EvictStalePlayers(s.playerTimeout) {
			s.logger.Info("移除超時玩家", "room_id", room.ID, "player_id", p.ID)
			room.Broadcast(EventPlayerTimeout, PlayerTimeoutPayload{PlayerID: p.ID}, "")
		}

		// 過期空房間：留到遍歷結束後統一刪除
		if room.IsExpired(s.roomTimeout) {
			expired = append(expired, room.ID)
		}
	})

	for _, roomID := range expired {
		s.registry.DeleteRoom(roomID)
		s.logger.Info("清理過期房間", "room_id", roomID)
	}
}
