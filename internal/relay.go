package internal

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// 系統設計問題：
//   入站事件只帶連接識別碼，如何正確路由到房間與玩家，
//   並保證任何單一畸形或過期事件最壞只是被丟棄、絕不讓行程崩潰？
//
// 設計方案：
//   - Session 註冊表把 connID 解析為 (playerID, roomID)，查無綁定的事件
//     視為過期會話，靜默忽略
//   - 所有可變狀態（註冊表映射、房間玩家集合）的變更都經過調度器或
//     清理器，處理器之間不存在對同一房間的裸讀改寫
//   - 每次事件處理都在 recover 屏障內：內部故障記日誌後吞掉，
//     不終止行程也不向客戶端洩漏堆疊

// Relay 訊息調度器
//
// 持有顯式注入的共享狀態（兩個註冊表），生命週期從行程啟動到優雅關閉。
type Relay struct {
	registry *Registry
	sessions *SessionRegistry
	sender   Sender
	sink     StatsSink
	logger   *slog.Logger

	// maxScore 伺服器自身的結算門檻，獨立於客戶端配置
	maxScore int
}

// NewRelay 創建調度器
func NewRelay(registry *Registry, sessions *SessionRegistry, sender Sender, sink StatsSink, maxScore int, logger *slog.Logger) *Relay {
	return &Relay{
		registry: registry,
		sessions: sessions,
		sender:   sender,
		sink:     sink,
		logger:   logger,
		maxScore: maxScore,
	}
}

// HandleMessage 處理一條入站訊息
//
// 傳輸層對同一連接串行呼叫，因此同連接的事件按到達順序處理。
func (rl *Relay) HandleMessage(connID string, raw []byte) {
	defer func() {
		if err := recover(); err != nil {
			rl.logger.Error("處理事件時發生 panic", "conn_id", connID, "error", err)
		}
	}()

	event, payload, err := DecodeInbound(raw)
	if err != nil {
		rl.logger.Debug("忽略格式不正確的事件", "conn_id", connID, "event", event, "error", err)
		return
	}

	switch event {
	case EventJoinRoom:
		rl.handleJoinRoom(connID, payload.(JoinRoomEvent))
	case EventPlayerReady:
		rl.handlePlayerReady(connID)
	case EventGameUpdate:
		rl.handleGameUpdate(connID, payload.(GameUpdateEvent))
	case EventListRooms:
		rl.handleListRooms(connID)
	case EventPing:
		rl.sender.Send(connID, EventPong, payload.(PingEvent).Timestamp)
	}
}

// handleJoinRoom 處理加入房間
//
// 同一 playerId 已在房間時先移除舊條目再加入——這是系統唯一的
// 重連機制，顯式保留而非偶然行為。
func (rl *Relay) handleJoinRoom(connID string, ev JoinRoomEvent) {
	playerID := ev.PlayerID
	if playerID == "" {
		playerID = "player_" + uuid.NewString()
	}

	room := rl.registry.GetOrCreateRoom(ev.RoomID)

	if _, exists := room.GetPlayer(playerID); exists {
		rl.logger.Info("玩家重連，移除舊條目",
			"room_id", ev.RoomID, "player_id", playerID)
		room.RemovePlayer(playerID)
	}

	if !room.AddPlayer(playerID, connID, ev.PlayerInfo) {
		rl.sender.Send(connID, EventRoomJoinFailed, RoomJoinFailedPayload{
			Error: "Room is full or unavailable",
		})
		return
	}

	rl.sessions.Bind(connID, playerID, ev.RoomID)

	rl.sender.Send(connID, EventRoomJoined, RoomJoinedPayload{
		Success:   true,
		PlayerID:  playerID,
		RoomID:    ev.RoomID,
		Players:   room.AllPlayers(),
		GameState: room.Snapshot(),
	})

	joined, _ := room.GetPlayer(playerID)
	room.Broadcast(EventPlayerJoined, PlayerJoinedPayload{
		Player:       joined,
		TotalPlayers: room.PlayerCount(),
	}, playerID)

	rl.logger.Info("玩家加入房間",
		"room_id", ev.RoomID, "player_id", playerID, "conn_id", connID)

	if room.IsReady() {
		rl.startGame(room)
	}
}

// handlePlayerReady 處理準備事件
func (rl *Relay) handlePlayerReady(connID string) {
	session, ok := rl.sessions.Lookup(connID)
	if !ok {
		return
	}
	room, ok := rl.registry.GetRoom(session.RoomID)
	if !ok {
		return
	}

	if !room.SetPlayerReady(session.PlayerID) {
		return
	}

	room.Broadcast(EventPlayerReadyOut, PlayerReadyPayload{
		PlayerID: session.PlayerID,
		AllReady: room.IsReady(),
	}, "")

	if room.IsReady() {
		rl.startGame(room)
	}
}

// handleGameUpdate 處理遊戲更新
func (rl *Relay) handleGameUpdate(connID string, ev GameUpdateEvent) {
	session, ok := rl.sessions.Lookup(connID)
	if !ok {
		return
	}
	room, ok := rl.registry.GetRoom(session.RoomID)
	if !ok {
		return
	}

	if ev.PlayerPosition != nil {
		room.UpdatePlayerPosition(session.PlayerID, *ev.PlayerPosition)
	}

	switch ev.Type {
	case UpdateBallHit:
		room.MergeGameState(GameStatePatch{
			Ball: &BallState{
				Position: *ev.BallPosition,
				Velocity: *ev.BallVelocity,
			},
		})
		room.RecordHit(session.PlayerID)

		room.Broadcast(EventBallUpdate, BallUpdatePayload{
			Ball:      room.Snapshot().Ball,
			HitBy:     session.PlayerID,
			Timestamp: time.Now().UnixMilli(),
		}, session.PlayerID)

	case UpdateScoreUpdate:
		room.MergeGameState(GameStatePatch{Scores: ev.Scores})

		room.Broadcast(EventScoreUpdate, ScoreUpdatePayload{
			Scores:   room.Snapshot().Scores,
			ScoredBy: session.PlayerID,
		}, session.PlayerID)

		if ev.Scores.Max() >= rl.maxScore {
			rl.endGame(room, *ev.Scores)
		}
	}
}

// HandleDisconnect 處理連接斷開
//
// 顯式 leave 與網路層斷線走同一路徑。房間被清空時立即刪除。
// 重連後舊連接的會話仍綁定，其延遲到達的斷線只有在房間內玩家的
// ConnID 仍指向該連接時才移除玩家，否則只解綁會話。
func (rl *Relay) HandleDisconnect(connID string) {
	defer func() {
		if err := recover(); err != nil {
			rl.logger.Error("處理斷線時發生 panic", "conn_id", connID, "error", err)
		}
	}()

	session, ok := rl.sessions.Lookup(connID)
	if !ok {
		return
	}

	if room, exists := rl.registry.GetRoom(session.RoomID); exists {
		if p, present := room.GetPlayer(session.PlayerID); present && p.ConnID == connID {
			room.RemovePlayer(session.PlayerID)
			room.Broadcast(EventPlayerLeft, PlayerLeftPayload{
				PlayerID:         session.PlayerID,
				RemainingPlayers: room.AllPlayers(),
			}, "")

			rl.logger.Info("玩家離開房間",
				"room_id", session.RoomID, "player_id", session.PlayerID)

			if room.PlayerCount() == 0 {
				rl.registry.DeleteRoom(session.RoomID)
			}
		}
	}

	rl.sessions.Unbind(connID)
}

// handleListRooms 回覆可加入房間列表（僅發送者）
func (rl *Relay) handleListRooms(connID string) {
	rl.sender.Send(connID, EventRoomList, rl.registry.ListJoinableRooms())
}

// startGame 觸發 ACTIVE 轉換並廣播 game-started
func (rl *Relay) startGame(room *Room) {
	state, players := room.StartGame()
	room.Broadcast(EventGameStarted, GameStartedPayload{
		GameState: state,
		Players:   players,
	}, "")
	rl.logger.Info("對局開始", "room_id", room.ID)
}

// endGame 觸發 ENDED 轉換，廣播 game-ended 並送出統計
//
// 統計寫入為 fire-and-forget：在獨立 goroutine 中進行，
// 失敗只記日誌，不影響房間。
func (rl *Relay) endGame(room *Room, finalScores Scores) {
	result := room.EndGame(finalScores)

	room.Broadcast(EventGameEnded, GameEndedPayload{
		FinalScores: result.FinalScores,
		Winner:      result.Winner,
		GameStats: GameStats{
			Duration:  result.Duration,
			TotalHits: result.TotalHits,
		},
	}, "")

	rl.logger.Info("對局結束",
		"room_id", room.ID,
		"winner", result.Winner,
		"duration_ms", result.Duration)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rl.sink.Store(ctx, "game-result", result); err != nil {
			rl.logger.Warn("寫入對局統計失敗", "room_id", result.RoomID, "error", err)
		}
	}()
}
