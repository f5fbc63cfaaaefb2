package internal

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Handler HTTP 請求處理器
//
// 中繼的帶外 REST 表面：房間創建與查詢是對註冊表操作的直通，
// WebRTC 信令作為不透明負載盲轉發，不攜帶獨立邏輯。
type Handler struct {
	registry  *Registry
	sessions  *SessionRegistry
	sink      StatsSink
	logger    *slog.Logger
	startedAt time.Time
}

// NewHandler 創建 HTTP 處理器
func NewHandler(registry *Registry, sessions *SessionRegistry, sink StatsSink, logger *slog.Logger) *Handler {
	return &Handler{
		registry:  registry,
		sessions:  sessions,
		sink:      sink,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Routes 設定路由
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// 中間件鏈
	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return h.recoverer(h.loggerMiddleware(handler))
	}

	mux.HandleFunc("GET /api/health", wrap(h.health))
	mux.HandleFunc("GET /api/rooms", wrap(h.listRooms))
	mux.HandleFunc("POST /api/create-room", wrap(h.createRoom))
	mux.HandleFunc("GET /api/room/{room_id}", wrap(h.getRoomDetail))
	mux.HandleFunc("POST /api/sync-game-data", wrap(h.syncGameData))
	mux.HandleFunc("GET /api/stats", wrap(h.stats))

	// WebRTC 信令直通
	mux.HandleFunc("POST /api/webrtc/offer", wrap(h.webrtcOffer))
	mux.HandleFunc("POST /api/webrtc/answer", wrap(h.webrtcAnswer))
	mux.HandleFunc("POST /api/webrtc/ice-candidate", wrap(h.webrtcIceCandidate))

	return mux
}

// health 健康檢查
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	stats := h.registry.Stats()
	h.jsonResponse(w, map[string]any{
		"status":           "healthy",
		"timestamp":        time.Now().UnixMilli(),
		"activeRooms":      stats.TotalRooms,
		"connectedPlayers": h.sessions.Count(),
	}, http.StatusOK)
}

// listRooms 列出全部房間
func (h *Handler) listRooms(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, h.registry.Rooms(), http.StatusOK)
}

type createRoomRequest struct {
	Settings *RoomSettings `json:"settings"`
}

// createRoom 帶外創建房間，返回生成的房間碼
func (h *Handler) createRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	// 空 body 合法：使用預設設定
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req.Settings = nil
	}

	roomID, err := h.registry.CreateRoom(req.Settings)
	if err != nil {
		h.errorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}

	room, _ := h.registry.GetRoom(roomID)
	h.jsonResponse(w, map[string]any{
		"success": true,
		"roomId":  roomID,
		"room": map[string]any{
			"id":        roomID,
			"settings":  room.Settings,
			"createdAt": room.CreatedAt.UnixMilli(),
		},
	}, http.StatusOK)
}

// getRoomDetail 獲取房間詳情
func (h *Handler) getRoomDetail(w http.ResponseWriter, r *http.Request) {
	room, exists := h.registry.GetRoom(r.PathValue("room_id"))
	if !exists {
		h.errorResponse(w, "Room not found", http.StatusNotFound)
		return
	}

	players := room.AllPlayers()
	playerViews := make([]map[string]any, 0, len(players))
	for _, p := range players {
		playerViews = append(playerViews, map[string]any{
			"id":      p.ID,
			"name":    p.Name,
			"isReady": p.IsReady,
		})
	}

	s := room.Summary()
	h.jsonResponse(w, map[string]any{
		"id":          s.ID,
		"playerCount": s.PlayerCount,
		"maxPlayers":  s.MaxPlayers,
		"isActive":    s.IsActive,
		"players":     playerViews,
	}, http.StatusOK)
}

// syncGameData 批次接收客戶端統計，逐筆轉交落地點
func (h *Handler) syncGameData(w http.ResponseWriter, r *http.Request) {
	var records []map[string]any
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		h.errorResponse(w, "無效的請求格式", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for _, record := range records {
		kind, _ := record["type"].(string)
		if kind == "" {
			kind = "unknown"
		}
		if err := h.sink.Store(ctx, kind, record); err != nil {
			h.logger.Warn("寫入遊戲資料失敗", "kind", kind, "error", err)
		}
	}

	h.jsonResponse(w, map[string]any{
		"success":   true,
		"processed": len(records),
	}, http.StatusOK)
}

// stats 統計資訊
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats := h.registry.Stats()
	h.jsonResponse(w, map[string]any{
		"totalRooms":   stats.TotalRooms,
		"activeGames":  stats.ActiveGames,
		"totalPlayers": h.sessions.Count(),
		"serverUptime": time.Since(h.startedAt).Seconds(),
	}, http.StatusOK)
}

// WebRTC 信令：負載不做解讀，原樣轉發給房間內的對端

type signalRequest struct {
	RoomID         string          `json:"roomId"`
	PlayerID       string          `json:"playerId"`
	TargetPlayerID string          `json:"targetPlayerId"`
	Offer          json.RawMessage `json:"offer"`
	Answer         json.RawMessage `json:"answer"`
	Candidate      json.RawMessage `json:"candidate"`
}

// webrtcOffer 向房間內其他玩家轉發 offer
func (h *Handler) webrtcOffer(w http.ResponseWriter, r *http.Request) {
	var req signalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, "無效的請求格式", http.StatusBadRequest)
		return
	}

	room, exists := h.registry.GetRoom(req.RoomID)
	if !exists {
		h.errorResponse(w, "Room not found", http.StatusNotFound)
		return
	}

	room.Broadcast("webrtc-offer", map[string]any{
		"offer": req.Offer,
		"from":  req.PlayerID,
	}, req.PlayerID)

	h.jsonResponse(w, map[string]any{"success": true}, http.StatusOK)
}

// webrtcAnswer 向指定玩家轉發 answer
func (h *Handler) webrtcAnswer(w http.ResponseWriter, r *http.Request) {
	var req signalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, "無效的請求格式", http.StatusBadRequest)
		return
	}

	room, exists := h.registry.GetRoom(req.RoomID)
	if !exists {
		h.errorResponse(w, "Room not found", http.StatusNotFound)
		return
	}

	room.SendTo(req.TargetPlayerID, "webrtc-answer", map[string]any{
		"answer": req.Answer,
		"from":   req.PlayerID,
	})

	h.jsonResponse(w, map[string]any{"success": true}, http.StatusOK)
}

// webrtcIceCandidate 轉發 ICE candidate：有目標則單播，否則廣播
func (h *Handler) webrtcIceCandidate(w http.ResponseWriter, r *http.Request) {
	var req signalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, "無效的請求格式", http.StatusBadRequest)
		return
	}

	room, exists := h.registry.GetRoom(req.RoomID)
	if !exists {
		h.errorResponse(w, "Room not found", http.StatusNotFound)
		return
	}

	payload := map[string]any{
		"candidate": req.Candidate,
		"from":      req.PlayerID,
	}
	if req.TargetPlayerID != "" {
		room.SendTo(req.TargetPlayerID, "webrtc-ice-candidate", payload)
	} else {
		room.Broadcast("webrtc-ice-candidate", payload, req.PlayerID)
	}

	h.jsonResponse(w, map[string]any{"success": true}, http.StatusOK)
}

// jsonResponse 返回 JSON 響應
func (h *Handler) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("編碼 JSON 失敗", "error", err)
	}
}

// errorResponse 返回錯誤響應
func (h *Handler) errorResponse(w http.ResponseWriter, message string, status int) {
	h.jsonResponse(w, map[string]any{
		"error": message,
	}, status)
}

// loggerMiddleware 日誌中間件
func (h *Handler) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// 包裝 ResponseWriter 以獲取狀態碼
		ww := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next(ww, r)

		h.logger.Info("HTTP 請求",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start))
	}
}

// recoverer panic 恢復中間件
func (h *Handler) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.logger.Error("處理請求時發生 panic",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path)

				h.errorResponse(w, "內部伺服器錯誤", http.StatusInternalServerError)
			}
		}()

		next(w, r)
	}
}

// responseWriter 包裝 ResponseWriter 以獲取狀態碼
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
