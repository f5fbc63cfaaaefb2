package internal

import "sync"

// Session 連接與 (玩家, 房間) 身份的綁定
//
// 純查找輔助：只帶連接識別碼的入站事件靠它路由。
// 玩家資料的權威來源始終是 Room。
type Session struct {
	PlayerID string
	RoomID   string
}

// SessionRegistry 連接識別碼 → Session 的映射
//
// 每條存活連接一筆，成功加入時建立，斷線時銷毀。無業務規則。
type SessionRegistry struct {
	sessions map[string]Session
	mu       sync.RWMutex
}

// NewSessionRegistry 創建會話註冊表
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]Session),
	}
}

// Bind 綁定連接
func (s *SessionRegistry) Bind(connID, playerID, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[connID] = Session{PlayerID: playerID, RoomID: roomID}
}

// Lookup 查詢連接的綁定
func (s *SessionRegistry) Lookup(connID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, exists := s.sessions[connID]
	return session, exists
}

// Unbind 解除綁定；冪等
func (s *SessionRegistry) Unbind(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, connID)
}

// Count 存活會話數
func (s *SessionRegistry) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
