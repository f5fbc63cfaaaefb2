package internal

import (
	"encoding/json"
	"errors"
	"fmt"
)

// 設計說明：
//   原始協議的事件是鬆散的動態物件，欄位靠慣例約定。
//   這裡改為帶標籤的事件變體：每種事件對應固定欄位的結構，
//   解碼時做形狀驗證，驗證失敗的事件直接忽略而不進入調度器。

// 入站事件名稱
const (
	EventJoinRoom    = "join-room"
	EventPlayerReady = "player-ready"
	EventGameUpdate  = "game-update"
	EventListRooms   = "list-rooms"
	EventPing        = "ping"
)

// 出站事件名稱
const (
	EventRoomJoined     = "room-joined"
	EventRoomJoinFailed = "room-join-failed"
	EventPlayerJoined   = "player-joined"
	EventPlayerReadyOut = "player-ready"
	EventGameStarted    = "game-started"
	EventBallUpdate     = "ball-update"
	EventScoreUpdate    = "score-update"
	EventGameEnded      = "game-ended"
	EventPlayerLeft     = "player-left"
	EventPlayerTimeout  = "player-timeout"
	EventRoomList       = "room-list"
	EventPong           = "pong"
)

// game-update 子類型
const (
	UpdateBallHit     = "ball-hit"
	UpdateScoreUpdate = "score-update"
)

// ErrBadEvent 事件形狀驗證失敗
var ErrBadEvent = errors.New("事件格式不正確")

// Vec3 三維向量（座標或速度）
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Scores 雙方分數
type Scores struct {
	Player1 int `json:"player1"`
	Player2 int `json:"player2"`
}

// Max 返回較高的一方分數
func (s Scores) Max() int {
	if s.Player1 > s.Player2 {
		return s.Player1
	}
	return s.Player2
}

// PlayerInfo 加入房間時客戶端附帶的玩家資訊
type PlayerInfo struct {
	Name string `json:"name"`
}

// Envelope 線上傳輸的事件信封
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// JoinRoomEvent 加入房間請求
type JoinRoomEvent struct {
	RoomID     string     `json:"roomId"`
	PlayerID   string     `json:"playerId"` // 可選；空值由伺服器生成
	PlayerInfo PlayerInfo `json:"playerInfo"`
}

// GameUpdateEvent 遊戲狀態更新
//
// Type 為空時僅更新玩家位置；ball-hit 與 score-update 額外攜帶
// 球狀態或分數，並觸發對應的廣播。
type GameUpdateEvent struct {
	Type           string  `json:"type"`
	PlayerPosition *Vec3   `json:"playerPosition"`
	BallPosition   *Vec3   `json:"ballPosition"`
	BallVelocity   *Vec3   `json:"ballVelocity"`
	Scores         *Scores `json:"scores"`
}

// PingEvent 延遲量測，時間戳原樣回送
type PingEvent struct {
	Timestamp int64
}

// DecodeInbound 解碼入站事件並驗證形狀
//
// 返回的具體類型為 JoinRoomEvent、GameUpdateEvent、PingEvent 之一，
// 或對無資料事件（player-ready、list-rooms）返回事件名稱本身。
func DecodeInbound(raw []byte) (string, any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrBadEvent, err)
	}

	switch env.Event {
	case EventJoinRoom:
		var ev JoinRoomEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return env.Event, nil, fmt.Errorf("%w: %v", ErrBadEvent, err)
		}
		if ev.RoomID == "" {
			return env.Event, nil, fmt.Errorf("%w: 缺少 roomId", ErrBadEvent)
		}
		return env.Event, ev, nil

	case EventGameUpdate:
		var ev GameUpdateEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return env.Event, nil, fmt.Errorf("%w: %v", ErrBadEvent, err)
		}
		switch ev.Type {
		case "":
			// 純位置更新
		case UpdateBallHit:
			if ev.BallPosition == nil || ev.BallVelocity == nil {
				return env.Event, nil, fmt.Errorf("%w: ball-hit 缺少球狀態", ErrBadEvent)
			}
		case UpdateScoreUpdate:
			if ev.Scores == nil {
				return env.Event, nil, fmt.Errorf("%w: score-update 缺少分數", ErrBadEvent)
			}
		default:
			return env.Event, nil, fmt.Errorf("%w: 未知的更新類型 %q", ErrBadEvent, ev.Type)
		}
		return env.Event, ev, nil

	case EventPing:
		var ts int64
		if err := json.Unmarshal(env.Data, &ts); err != nil {
			return env.Event, nil, fmt.Errorf("%w: 時間戳必須為整數", ErrBadEvent)
		}
		return env.Event, PingEvent{Timestamp: ts}, nil

	case EventPlayerReady, EventListRooms:
		return env.Event, nil, nil

	default:
		return env.Event, nil, fmt.Errorf("%w: 未知事件 %q", ErrBadEvent, env.Event)
	}
}

// 出站事件負載

// RoomJoinedPayload room-joined 確認
type RoomJoinedPayload struct {
	Success   bool      `json:"success"`
	PlayerID  string    `json:"playerId"`
	RoomID    string    `json:"roomId"`
	Players   []Player  `json:"players"`
	GameState GameState `json:"gameState"`
}

// RoomJoinFailedPayload room-join-failed 錯誤
type RoomJoinFailedPayload struct {
	Error string `json:"error"`
}

// PlayerJoinedPayload player-joined 通知
type PlayerJoinedPayload struct {
	Player       Player `json:"player"`
	TotalPlayers int    `json:"totalPlayers"`
}

// PlayerReadyPayload player-ready 通知
type PlayerReadyPayload struct {
	PlayerID string `json:"playerId"`
	AllReady bool   `json:"allReady"`
}

// GameStartedPayload game-started 通知
type GameStartedPayload struct {
	GameState GameState `json:"gameState"`
	Players   []Player  `json:"players"`
}

// BallUpdatePayload ball-update 通知
type BallUpdatePayload struct {
	Ball      BallState `json:"ball"`
	HitBy     string    `json:"hitBy"`
	Timestamp int64     `json:"timestamp"`
}

// ScoreUpdatePayload score-update 通知
type ScoreUpdatePayload struct {
	Scores   Scores `json:"scores"`
	ScoredBy string `json:"scoredBy"`
}

// GameEndedPayload game-ended 通知
type GameEndedPayload struct {
	FinalScores Scores    `json:"finalScores"`
	Winner      string    `json:"winner"`
	GameStats   GameStats `json:"gameStats"`
}

// GameStats 對局統計
type GameStats struct {
	Duration  int64 `json:"duration"`
	TotalHits int   `json:"totalHits"`
}

// PlayerLeftPayload player-left 通知
type PlayerLeftPayload struct {
	PlayerID         string   `json:"playerId"`
	RemainingPlayers []Player `json:"remainingPlayers"`
}

// PlayerTimeoutPayload player-timeout 通知
type PlayerTimeoutPayload struct {
	PlayerID string `json:"playerId"`
}

// RoomSummary 房間摘要（room-list 與 REST API 共用）
type RoomSummary struct {
	ID          string `json:"id"`
	PlayerCount int    `json:"playerCount"`
	MaxPlayers  int    `json:"maxPlayers"`
	GameMode    string `json:"gameMode"`
	IsActive    bool   `json:"isActive,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
}
