package internal

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// 系統設計問題：
//   如何讓兩個遠端客戶端在同一房間內交換即時遊戲訊息，
//   並在斷線、超時、房間清空時正確回收資源？
//
// 核心挑戰：
//   1. 容量約束：房間最多兩名玩家，加入滿房必須失敗且不改變狀態
//   2. 權威快照：球與分數以伺服器快照為準，客戶端更新以補丁合併
//   3. 廣播語義：向除發送者外的所有玩家送出，死連接不得拖累其他接收者
//   4. 重連容忍：同一 playerId 再次加入時先移除舊條目（唯一的重連機制）
//
// 設計方案：
//   - 每房間一把 RWMutex，房間彼此獨立互不阻塞
//   - 出站交付透過 Sender 介面，失敗逐接收者吞掉
//   - 生命週期 EMPTY → FILLING → READY → ACTIVE → ENDED 由調度器驅動

// Player 房間內的玩家
//
// 由所屬房間獨占持有。LastSeen 在每次該玩家的更新事件上刷新，
// 清理器據此判定超時。
type Player struct {
	ID       string      `json:"id"`
	ConnID   string      `json:"-"`
	Name     string      `json:"name"`
	Position Vec3        `json:"position"`
	IsReady  bool        `json:"isReady"`
	LastSeen time.Time   `json:"-"`
	Stats    PlayerStats `json:"stats"`
}

// PlayerStats 玩家累計統計
type PlayerStats struct {
	Hits     int   `json:"hits"`
	Misses   int   `json:"misses"`
	GameTime int64 `json:"gameTime"`
}

// BallState 球的位置與速度
type BallState struct {
	Position Vec3 `json:"position"`
	Velocity Vec3 `json:"velocity"`
}

// GameState 權威共享遊戲快照
//
// 時間戳一律為 epoch 毫秒，與線上格式一致。
type GameState struct {
	Ball       BallState `json:"ball"`
	Scores     Scores    `json:"scores"`
	IsActive   bool      `json:"isActive"`
	StartTime  int64     `json:"startTime,omitempty"`
	EndTime    int64     `json:"endTime,omitempty"`
	Duration   int64     `json:"duration,omitempty"`
	LastUpdate int64     `json:"lastUpdate"`
}

// GameStatePatch 快照的部分更新
//
// 淺合併：只覆蓋非 nil 欄位，LastUpdate 每次合併都刷新。
type GameStatePatch struct {
	Ball   *BallState
	Scores *Scores
}

// GameResult 對局結束時的結算
type GameResult struct {
	RoomID      string         `json:"roomId"`
	FinalScores Scores         `json:"finalScores"`
	Winner      string         `json:"winner"`
	Duration    int64          `json:"duration"`
	TotalHits   int            `json:"totalHits"`
	Players     []PlayerResult `json:"players"`
	Timestamp   int64          `json:"timestamp"`
}

// PlayerResult 單一玩家的結算統計
type PlayerResult struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Stats PlayerStats `json:"stats"`
}

// WinnerDraw 雙方同分達到門檻時的結果
//
// 原始實作在同分時靜默判給 player2，這裡改為顯式的平局值。
const WinnerDraw = "draw"

// Sender 出站交付介面
//
// 由傳輸層實現。交付為盡力而為：連接已消失時返回 false，
// 呼叫方不重試也不向房間回報錯誤。
type Sender interface {
	Send(connID, event string, data any) bool
}

// Room 遊戲房間
type Room struct {
	ID        string
	Settings  RoomSettings
	CreatedAt time.Time
	Players   map[string]*Player
	State     GameState

	Mu     sync.RWMutex
	sender Sender
}

// NewRoom 創建房間
func NewRoom(id string, settings RoomSettings, sender Sender) *Room {
	return &Room{
		ID:        id,
		Settings:  settings,
		CreatedAt: time.Now(),
		Players:   make(map[string]*Player),
		State: GameState{
			Ball: BallState{
				Position: Vec3{X: 0, Y: 1, Z: 0},
				Velocity: Vec3{X: 0, Y: 0, Z: 0.03},
			},
			LastUpdate: time.Now().UnixMilli(),
		},
		sender: sender,
	}
}

// AddPlayer 加入玩家
//
// 滿房時返回 false 且不改變玩家集合。新玩家依槽位落在球場兩端：
// 第一位在 z=+depth/2，第二位在 z=−depth/2。
// 呼叫方負責註冊 Session 與後續廣播。
func (r *Room) AddPlayer(playerID, connID string, info PlayerInfo) bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if len(r.Players) >= r.Settings.MaxPlayers {
		return false
	}

	name := info.Name
	if name == "" {
		name = fmt.Sprintf("Player %d", len(r.Players)+1)
	}

	z := r.Settings.Dimensions.Depth / 2
	if len(r.Players) > 0 {
		z = -z
	}

	r.Players[playerID] = &Player{
		ID:       playerID,
		ConnID:   connID,
		Name:     name,
		Position: Vec3{X: 0, Y: 1.6, Z: z},
		IsReady:  false,
		LastSeen: time.Now(),
	}

	return true
}

// RemovePlayer 移除玩家，返回是否確有移除
func (r *Room) RemovePlayer(playerID string) bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if _, exists := r.Players[playerID]; !exists {
		return false
	}
	delete(r.Players, playerID)
	return true
}

// GetPlayer 獲取玩家副本
func (r *Room) GetPlayer(playerID string) (Player, bool) {
	r.Mu.RLock()
	defer r.Mu.RUnlock()

	p, exists := r.Players[playerID]
	if !exists {
		return Player{}, false
	}
	return *p, true
}

// AllPlayers 獲取玩家列表副本
func (r *Room) AllPlayers() []Player {
	r.Mu.RLock()
	defer r.Mu.RUnlock()
	return r.playersLocked()
}

func (r *Room) playersLocked() []Player {
	players := make([]Player, 0, len(r.Players))
	for _, p := range r.Players {
		players = append(players, *p)
	}
	return players
}

// PlayerCount 獲取玩家數量
func (r *Room) PlayerCount() int {
	r.Mu.RLock()
	defer r.Mu.RUnlock()
	return len(r.Players)
}

// IsReady 房間是否可開局：滿員且所有玩家已準備
func (r *Room) IsReady() bool {
	r.Mu.RLock()
	defer r.Mu.RUnlock()

	if len(r.Players) != r.Settings.MaxPlayers {
		return false
	}
	for _, p := range r.Players {
		if !p.IsReady {
			return false
		}
	}
	return true
}

// SetPlayerReady 設置玩家準備旗標並刷新 LastSeen
func (r *Room) SetPlayerReady(playerID string) bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	p, exists := r.Players[playerID]
	if !exists {
		return false
	}
	p.IsReady = true
	p.LastSeen = time.Now()
	return true
}

// UpdatePlayerPosition 更新玩家位置並刷新 LastSeen
func (r *Room) UpdatePlayerPosition(playerID string, pos Vec3) bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	p, exists := r.Players[playerID]
	if !exists {
		return false
	}
	p.Position = pos
	p.LastSeen = time.Now()
	return true
}

// RecordHit 記錄一次擊球
func (r *Room) RecordHit(playerID string) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if p, exists := r.Players[playerID]; exists {
		p.Stats.Hits++
		p.LastSeen = time.Now()
	}
}

// MergeGameState 將補丁淺合併進快照，LastUpdate 一律刷新
func (r *Room) MergeGameState(patch GameStatePatch) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if patch.Ball != nil {
		r.State.Ball = *patch.Ball
	}
	if patch.Scores != nil {
		r.State.Scores = *patch.Scores
	}
	r.State.LastUpdate = time.Now().UnixMilli()
}

// Snapshot 獲取快照副本
func (r *Room) Snapshot() GameState {
	r.Mu.RLock()
	defer r.Mu.RUnlock()
	return r.State
}

// StartGame 進入對局：重置球並隨機化發球方向
//
// 發球：x 分量在 ±0.01 內均勻隨機，z 分量等概率取 ±0.03，
// 決定首球飛向哪一端。返回廣播 game-started 所需的快照與玩家列表。
func (r *Room) StartGame() (GameState, []Player) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	now := time.Now().UnixMilli()
	r.State.IsActive = true
	r.State.StartTime = now
	r.State.EndTime = 0
	r.State.Duration = 0

	vz := 0.03
	if rand.IntN(2) == 0 {
		vz = -0.03
	}
	r.State.Ball = BallState{
		Position: Vec3{X: 0, Y: 1, Z: 0},
		Velocity: Vec3{
			X: (rand.Float64() - 0.5) * 0.02,
			Y: 0,
			Z: vz,
		},
	}
	r.State.LastUpdate = now

	return r.State, r.playersLocked()
}

// EndGame 結束對局並導出結算
//
// 勝者為嚴格較高分的一方；同分時為 WinnerDraw。
func (r *Room) EndGame(finalScores Scores) GameResult {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	now := time.Now().UnixMilli()
	r.State.IsActive = false
	r.State.EndTime = now
	if r.State.StartTime > 0 {
		r.State.Duration = now - r.State.StartTime
	}
	r.State.Scores = finalScores
	r.State.LastUpdate = now

	winner := WinnerDraw
	if finalScores.Player1 > finalScores.Player2 {
		winner = "player1"
	} else if finalScores.Player2 > finalScores.Player1 {
		winner = "player2"
	}

	totalHits := 0
	players := make([]PlayerResult, 0, len(r.Players))
	for _, p := range r.Players {
		totalHits += p.Stats.Hits
		players = append(players, PlayerResult{ID: p.ID, Name: p.Name, Stats: p.Stats})
	}

	return GameResult{
		RoomID:      r.ID,
		FinalScores: finalScores,
		Winner:      winner,
		Duration:    r.State.Duration,
		TotalHits:   totalHits,
		Players:     players,
		Timestamp:   now,
	}
}

// Broadcast 向房間內除 excludePlayerID 外的所有玩家廣播
//
// 交付盡力而為：單一接收者的連接消失只影響該接收者，
// 不中斷對其餘玩家的交付，也不向發送者回報。
func (r *Room) Broadcast(event string, data any, excludePlayerID string) {
	r.Mu.RLock()
	targets := make([]string, 0, len(r.Players))
	for playerID, p := range r.Players {
		if playerID == excludePlayerID {
			continue
		}
		targets = append(targets, p.ConnID)
	}
	r.Mu.RUnlock()

	for _, connID := range targets {
		r.sender.Send(connID, event, data)
	}
}

// SendTo 向房間內指定玩家單播，玩家或連接不存在時返回 false
func (r *Room) SendTo(playerID, event string, data any) bool {
	r.Mu.RLock()
	p, exists := r.Players[playerID]
	var connID string
	if exists {
		connID = p.ConnID
	}
	r.Mu.RUnlock()

	if !exists {
		return false
	}
	return r.sender.Send(connID, event, data)
}

// EvictStalePlayers 移除 LastSeen 超過 timeout 的玩家並返回被移除者
func (r *Room) EvictStalePlayers(timeout time.Duration) []Player {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	now := time.Now()
	var evicted []Player
	for playerID, p := range r.Players {
		if now.Sub(p.LastSeen) > timeout {
			evicted = append(evicted, *p)
			delete(r.Players, playerID)
		}
	}
	return evicted
}

// IsExpired 空房間且存在時間超過 timeout 時視為過期
func (r *Room) IsExpired(timeout time.Duration) bool {
	r.Mu.RLock()
	defer r.Mu.RUnlock()
	return len(r.Players) == 0 && time.Since(r.CreatedAt) > timeout
}

// Summary 房間摘要
func (r *Room) Summary() RoomSummary {
	r.Mu.RLock()
	defer r.Mu.RUnlock()

	return RoomSummary{
		ID:          r.ID,
		PlayerCount: len(r.Players),
		MaxPlayers:  r.Settings.MaxPlayers,
		GameMode:    r.Settings.GameMode,
		IsActive:    r.State.IsActive,
		CreatedAt:   r.CreatedAt.UnixMilli(),
	}
}
