package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 系統設計：傳輸適配層
//
//   - 每條連接分配一個 UUID 作為連接識別碼，與玩家身份解耦
//     （玩家身份由調度器在 join-room 時綁定）
//   - 入站：readPump 串行讀取，逐條交給調度器——同連接事件天然有序
//   - 出站：每連接一條緩衝 channel，廣播時非阻塞寫入，
//     緩衝滿即丟棄該接收者的訊息，慢客戶端不拖累同房間其他玩家
//   - 心跳：54 秒 Ping / 60 秒讀取超時，檢測無聲消失的死連接

// EventHandler 入站事件的消費者
//
// 由調度器實現；Attach 之後傳輸層才開始接受連接。
type EventHandler interface {
	HandleMessage(connID string, raw []byte)
	HandleDisconnect(connID string)
}

// Hub WebSocket 連接中心
type Hub struct {
	handler     EventHandler
	logger      *slog.Logger
	upgrader    websocket.Upgrader
	connections map[string]*Connection
	mu          sync.RWMutex
}

// Connection 一條 WebSocket 連接
type Connection struct {
	ID        string
	Conn      *websocket.Conn
	Send      chan []byte
	hub       *Hub
	closeOnce sync.Once // 確保 channel 只關閉一次
}

// NewHub 創建連接中心
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 在生產環境應該檢查來源
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[string]*Connection),
	}
}

// Attach 綁定事件消費者，必須在 ServeWS 之前呼叫
func (hub *Hub) Attach(handler EventHandler) {
	hub.handler = handler
}

// ServeWS 處理 WebSocket 連接
func (hub *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	connection := &Connection{
		ID:   uuid.NewString(),
		Conn: conn,
		Send: make(chan []byte, 256),
		hub:  hub,
	}

	hub.register(connection)

	go connection.writePump()
	go connection.readPump()

	hub.logger.Info("WebSocket 連接建立", "conn_id", connection.ID)
}

// Send 向指定連接交付一個事件
//
// 實現 Sender。連接不存在或緩衝已滿時返回 false，訊息被丟棄。
// 讀鎖必須跨越整個 channel 發送：unregister/Stop 在寫鎖下關閉
// conn.Send，鎖外發送會與關閉交錯而 panic。
func (hub *Hub) Send(connID, event string, data any) bool {
	message, err := json.Marshal(Envelope{Event: event, Data: mustRaw(data)})
	if err != nil {
		hub.logger.Error("序列化事件失敗", "event", event, "error", err)
		return false
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	conn, exists := hub.connections[connID]
	if !exists {
		return false
	}

	select {
	case conn.Send <- message:
		return true
	default:
		hub.logger.Warn("連接緩衝區滿，丟棄訊息", "conn_id", connID, "event", event)
		return false
	}
}

// ConnectionCount 存活連接數
func (hub *Hub) ConnectionCount() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.connections)
}

// Stop 關閉所有連接
func (hub *Hub) Stop() {
	hub.mu.Lock()
	for _, conn := range hub.connections {
		conn.closeOnce.Do(func() {
			close(conn.Send)
		})
		conn.Conn.Close()
	}
	hub.connections = make(map[string]*Connection)
	hub.mu.Unlock()

	hub.logger.Info("WebSocket Hub 已停止")
}

// register 註冊連接
func (hub *Hub) register(conn *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.connections[conn.ID] = conn
}

// unregister 取消註冊連接
func (hub *Hub) unregister(conn *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if actual, exists := hub.connections[conn.ID]; exists && actual == conn {
		delete(hub.connections, conn.ID)
		conn.closeOnce.Do(func() {
			close(conn.Send)
		})
	}
}

// readPump 讀取客戶端訊息
//
// 60 秒內未收到任何訊息（含 Pong）即關閉連接；
// 收到 Pong 則重置超時。退出時向調度器發出合成的斷線事件。
func (c *Connection) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.Conn.Close()
		c.hub.handler.HandleDisconnect(c.ID)
	}()

	if err := c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.hub.logger.Error("設置讀取期限失敗", "error", err)
	}

	c.Conn.SetPongHandler(func(string) error {
		if err := c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			c.hub.logger.Error("設置讀取期限失敗", "error", err)
		}
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("WebSocket 讀取錯誤", "error", err, "conn_id", c.ID)
			}
			break
		}

		if messageType == websocket.TextMessage {
			c.hub.handler.HandleMessage(c.ID, message)
		}
	}
}

// writePump 寫入訊息到客戶端
//
// 54 秒 Ping 間隔配合 readPump 的 60 秒超時，留 6 秒余量。
func (c *Connection) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// Hub 關閉了通道，優雅關閉連接
				deadline := time.Now().Add(time.Second)
				if err := c.Conn.SetWriteDeadline(deadline); err == nil {
					_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				}
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量發送隊列中的訊息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				if err := c.Conn.WriteMessage(websocket.TextMessage, <-c.Send); err != nil {
					c.hub.logger.Error("發送訊息失敗", "error", err)
					return
				}
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// mustRaw 將負載編碼為 RawMessage；失敗時返回 null
func mustRaw(data any) json.RawMessage {
	raw, err := json.Marshal(data)
	if err != nil {
		return json.RawMessage("null")
	}
	return raw
}
