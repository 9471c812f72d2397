// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/wfunc/gonu/network"
)

// Session is one client connection. UserID is fixed at connect time from the
// upstream identity and is what every game action is attributed to.
type Session struct {
	ID         string
	Conn       network.Connection
	UserID     string
	CreatedAt  time.Time
	gameID     string
	lastActive time.Time
	mutex      sync.RWMutex
}

func NewSession(id, userID string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		UserID:     userID,
		CreatedAt:  now,
		lastActive: now,
	}
}

// GetUserID 实现 state.Player
func (s *Session) GetUserID() string {
	return s.UserID
}

func (s *Session) GetID() string {
	return s.ID
}

// GameID returns the game this connection is attached to, "" when in the lobby.
func (s *Session) GameID() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.gameID
}

func (s *Session) SetGameID(id string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.gameID = id
}

func (s *Session) Touch() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.lastActive = time.Now()
}

func (s *Session) LastActive() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActive
}

func (s *Session) Send(msgID uint16, data []byte) error {
	s.Touch()
	return s.Conn.Send(msgID, data)
}

// SendMessage encodes v and sends it.
func (s *Session) SendMessage(msgID uint16, v any) error {
	data, err := network.Marshal(v)
	if err != nil {
		return err
	}
	return s.Send(msgID, data)
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

// GetByUserID returns every connection of userID; a user may have several tabs open.
func (m *Manager) GetByUserID(userID string) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if session.UserID == userID {
			result = append(result, session)
		}
	}
	return result
}

func (m *Manager) All() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	result := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}
	return result
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}
