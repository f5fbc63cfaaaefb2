package internal_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/koopa0/pongball-relay/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSink 記錄所有落地呼叫的 StatsSink 假實現
type captureSink struct {
	mu      sync.Mutex
	records []capturedRecord
}

type capturedRecord struct {
	Kind   string
	Record any
}

func (c *captureSink) Store(_ context.Context, kind string, record any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, capturedRecord{Kind: kind, Record: record})
	return nil
}

func (c *captureSink) all() []capturedRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]capturedRecord(nil), c.records...)
}

type handlerFixture struct {
	handler  http.Handler
	registry *internal.Registry
	sessions *internal.SessionRegistry
	sender   *fakeSender
	sink     *captureSink
}

func newHandlerFixture() *handlerFixture {
	sender := newFakeSender()
	logger := testLogger()
	registry := internal.NewRegistry(testSettings(), sender, logger)
	sessions := internal.NewSessionRegistry()
	sink := &captureSink{}
	h := internal.NewHandler(registry, sessions, sink, logger)

	return &handlerFixture{
		handler:  h.Routes(),
		registry: registry,
		sessions: sessions,
		sender:   sender,
		sink:     sink,
	}
}

func (f *handlerFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// TestHandler_Health 測試健康檢查
func TestHandler_Health(t *testing.T) {
	f := newHandlerFixture()
	f.registry.GetOrCreateRoom("ABC123")
	f.sessions.Bind("conn1", "P1", "ABC123")

	rec := f.do(t, http.MethodGet, "/api/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, 1.0, body["activeRooms"])
	assert.Equal(t, 1.0, body["connectedPlayers"])
	assert.NotZero(t, body["timestamp"])
}

// TestHandler_CreateRoom 測試帶外創建房間
func TestHandler_CreateRoom(t *testing.T) {
	f := newHandlerFixture()

	// 空 body 使用預設設定
	rec := f.do(t, http.MethodPost, "/api/create-room", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])

	roomID, _ := body["roomId"].(string)
	require.Len(t, roomID, 6)
	_, exists := f.registry.GetRoom(roomID)
	assert.True(t, exists)

	// 帶設定覆蓋
	rec = f.do(t, http.MethodPost, "/api/create-room", map[string]any{
		"settings": map[string]any{"gameMode": "practice"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)

	room, _ := f.registry.GetRoom(body["roomId"].(string))
	assert.Equal(t, "practice", room.Settings.GameMode)
}

// TestHandler_RoomDetail 測試房間詳情與 404
func TestHandler_RoomDetail(t *testing.T) {
	f := newHandlerFixture()

	room := f.registry.GetOrCreateRoom("ABC123")
	room.AddPlayer("P1", "conn1", internal.PlayerInfo{Name: "愛麗絲"})

	rec := f.do(t, http.MethodGet, "/api/room/ABC123", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ABC123", body["id"])
	assert.Equal(t, 1.0, body["playerCount"])
	assert.Equal(t, 2.0, body["maxPlayers"])

	players, _ := body["players"].([]any)
	require.Len(t, players, 1)
	assert.Equal(t, "愛麗絲", players[0].(map[string]any)["name"])

	// 不存在的房間
	rec = f.do(t, http.MethodGet, "/api/room/NOPE99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestHandler_ListRooms 測試房間列表
func TestHandler_ListRooms(t *testing.T) {
	f := newHandlerFixture()
	f.registry.GetOrCreateRoom("ROOM01")
	f.registry.GetOrCreateRoom("ROOM02")

	rec := f.do(t, http.MethodGet, "/api/rooms", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var rooms []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rooms))
	assert.Len(t, rooms, 2)
}

// TestHandler_SyncGameData 測試批次統計落地
func TestHandler_SyncGameData(t *testing.T) {
	f := newHandlerFixture()

	rec := f.do(t, http.MethodPost, "/api/sync-game-data", []map[string]any{
		{"type": "match", "score": 11},
		{"score": 3}, // 無 type 的記錄歸入 unknown
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, 2.0, body["processed"])

	records := f.sink.all()
	require.Len(t, records, 2)
	assert.Equal(t, "match", records[0].Kind)
	assert.Equal(t, "unknown", records[1].Kind)

	// 非陣列 body 被拒絕
	rec = f.do(t, http.MethodPost, "/api/sync-game-data", map[string]any{"type": "match"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestHandler_Stats 測試統計端點
func TestHandler_Stats(t *testing.T) {
	f := newHandlerFixture()

	room := f.registry.GetOrCreateRoom("ABC123")
	room.AddPlayer("P1", "conn1", internal.PlayerInfo{})
	room.AddPlayer("P2", "conn2", internal.PlayerInfo{})
	room.StartGame()
	f.sessions.Bind("conn1", "P1", "ABC123")
	f.sessions.Bind("conn2", "P2", "ABC123")

	rec := f.do(t, http.MethodGet, "/api/stats", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, 1.0, body["totalRooms"])
	assert.Equal(t, 1.0, body["activeGames"])
	assert.Equal(t, 2.0, body["totalPlayers"])
	assert.Contains(t, body, "serverUptime")
}

// TestHandler_WebRTCSignaling 測試信令盲轉發
func TestHandler_WebRTCSignaling(t *testing.T) {
	f := newHandlerFixture()

	room := f.registry.GetOrCreateRoom("ABC123")
	room.AddPlayer("P1", "conn1", internal.PlayerInfo{})
	room.AddPlayer("P2", "conn2", internal.PlayerInfo{})

	// offer 廣播給發起者以外的玩家
	rec := f.do(t, http.MethodPost, "/api/webrtc/offer", map[string]any{
		"roomId":   "ABC123",
		"playerId": "P1",
		"offer":    map[string]any{"type": "offer", "sdp": "v=0"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	offers := f.sender.byEvent("webrtc-offer")
	require.Len(t, offers, 1)
	assert.Equal(t, "conn2", offers[0].ConnID)

	// answer 單播給指定目標
	f.sender.reset()
	rec = f.do(t, http.MethodPost, "/api/webrtc/answer", map[string]any{
		"roomId":         "ABC123",
		"playerId":       "P2",
		"targetPlayerId": "P1",
		"answer":         map[string]any{"type": "answer", "sdp": "v=0"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	answers := f.sender.byEvent("webrtc-answer")
	require.Len(t, answers, 1)
	assert.Equal(t, "conn1", answers[0].ConnID)

	// ICE candidate 無目標時廣播
	f.sender.reset()
	rec = f.do(t, http.MethodPost, "/api/webrtc/ice-candidate", map[string]any{
		"roomId":    "ABC123",
		"playerId":  "P1",
		"candidate": map[string]any{"candidate": "candidate:1"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	candidates := f.sender.byEvent("webrtc-ice-candidate")
	require.Len(t, candidates, 1)
	assert.Equal(t, "conn2", candidates[0].ConnID)

	// 不存在的房間返回 404
	rec = f.do(t, http.MethodPost, "/api/webrtc/offer", map[string]any{
		"roomId":   "NOPE99",
		"playerId": "P1",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
