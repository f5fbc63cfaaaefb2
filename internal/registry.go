package internal

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Registry 房間註冊表
//
// roomID → Room 的唯一權威映射。房間由註冊表獨占持有：
// 創建於首次加入或顯式的 create-room 呼叫，
// 清空後由斷線路徑或清理器刪除。
type Registry struct {
	rooms    map[string]*Room
	defaults RoomSettings
	sender   Sender
	logger   *slog.Logger
	mu       sync.RWMutex
}

// NewRegistry 創建房間註冊表
func NewRegistry(defaults RoomSettings, sender Sender, logger *slog.Logger) *Registry {
	return &Registry{
		rooms:    make(map[string]*Room),
		defaults: defaults,
		sender:   sender,
		logger:   logger,
	}
}

// maxCodeRetries 房間碼碰撞重試上限
//
// 36^6 的識別碼空間下連續碰撞實際上不會發生，
// 上限只是把理論上的無窮迴圈變成可回報的錯誤。
const maxCodeRetries = 16

// CreateRoom 創建房間並返回生成的房間碼
//
// overrides 為 nil 時使用預設設定；房間碼與現存房間查重，碰撞則重試。
func (reg *Registry) CreateRoom(overrides *RoomSettings) (string, error) {
	settings := reg.defaults
	if overrides != nil {
		if overrides.MaxPlayers > 0 {
			settings.MaxPlayers = overrides.MaxPlayers
		}
		if overrides.GameMode != "" {
			settings.GameMode = overrides.GameMode
		}
		if overrides.Dimensions != (RoomDimensions{}) {
			settings.Dimensions = overrides.Dimensions
		}
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	for range maxCodeRetries {
		roomID := generateRoomCode()
		if _, exists := reg.rooms[roomID]; exists {
			continue
		}
		reg.rooms[roomID] = NewRoom(roomID, settings, reg.sender)
		reg.logger.Info("房間已創建", "room_id", roomID, "mode", settings.GameMode)
		return roomID, nil
	}

	return "", fmt.Errorf("房間碼空間耗盡")
}

// GetOrCreateRoom 返回現存房間，不存在則以預設設定創建
//
// 供憑碼加入的流程使用：客戶端只知道房間碼，首位加入者即創建房間。
func (reg *Registry) GetOrCreateRoom(roomID string) *Room {
	reg.mu.RLock()
	room, exists := reg.rooms[roomID]
	reg.mu.RUnlock()
	if exists {
		return room
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	// 雙重檢查：鎖升級期間可能已被其他加入者創建
	if room, exists := reg.rooms[roomID]; exists {
		return room
	}

	room = NewRoom(roomID, reg.defaults, reg.sender)
	reg.rooms[roomID] = room
	reg.logger.Info("房間已創建", "room_id", roomID, "mode", reg.defaults.GameMode)
	return room
}

// GetRoom 純查詢
func (reg *Registry) GetRoom(roomID string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, exists := reg.rooms[roomID]
	return room, exists
}

// DeleteRoom 移除房間；冪等，房間不存在時為 no-op
func (reg *Registry) DeleteRoom(roomID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.rooms[roomID]; !exists {
		return
	}
	delete(reg.rooms, roomID)
	reg.logger.Info("房間已刪除", "room_id", roomID)
}

// ListJoinableRooms 可加入房間的摘要快照（未滿員者）
func (reg *Registry) ListJoinableRooms() []RoomSummary {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	summaries := make([]RoomSummary, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		s := room.Summary()
		if s.PlayerCount < s.MaxPlayers {
			summaries = append(summaries, s)
		}
	}
	return summaries
}

// Rooms 全部房間的摘要快照
func (reg *Registry) Rooms() []RoomSummary {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	summaries := make([]RoomSummary, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		summaries = append(summaries, room.Summary())
	}
	return summaries
}

// ForEachRoom 對每個房間執行 fn（供清理器遍歷）
func (reg *Registry) ForEachRoom(fn func(room *Room)) {
	reg.mu.RLock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.mu.RUnlock()

	for _, room := range rooms {
		fn(room)
	}
}

// RegistryStats 註冊表統計
type RegistryStats struct {
	TotalRooms   int `json:"totalRooms"`
	ActiveGames  int `json:"activeGames"`
	TotalPlayers int `json:"totalPlayers"`
}

// Stats 獲取統計資訊
func (reg *Registry) Stats() RegistryStats {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	stats := RegistryStats{TotalRooms: len(reg.rooms)}
	for _, room := range reg.rooms {
		s := room.Summary()
		stats.TotalPlayers += s.PlayerCount
		if s.IsActive {
			stats.ActiveGames++
		}
	}
	return stats
}

// generateRoomCode 生成 6 位房間碼（A-Z0-9）
func generateRoomCode() string {
	const chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		// 隨機讀取失敗時以時間戳作為備用
		return fmt.Sprintf("%06X", time.Now().UnixNano()&0xFFFFFF)
	}
	for i := range b {
		b[i] = chars[int(b[i])%len(chars)]
	}
	return string(b)
}
