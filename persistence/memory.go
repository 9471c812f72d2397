package persistence

import (
	"context"
	"sync"

	"github.com/wfunc/gonu/models"
)

// MemoryStore keeps records in process. It is the default single-node backend
// and the store used by tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.GameSession
	hub      *Hub
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.GameSession),
		hub:      NewHub(),
	}
}

func (m *MemoryStore) Create(ctx context.Context, sess *models.GameSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[sess.ID]; exists {
		return ErrExists
	}
	sess.Version = 1
	stored := sess.Clone()
	m.sessions[sess.ID] = stored
	m.hub.Publish(Change{ID: sess.ID, Session: stored})
	return nil
}

func (m *MemoryStore) Read(ctx context.Context, id string) (*models.GameSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, exists := m.sessions[id]
	if !exists {
		return nil, ErrNotFound
	}
	return sess.Clone(), nil
}

func (m *MemoryStore) Write(ctx context.Context, sess *models.GameSession, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, exists := m.sessions[sess.ID]
	if !exists {
		return ErrNotFound
	}
	if cur.Version != expectedVersion {
		return ErrConflict
	}
	sess.Version = expectedVersion + 1
	stored := sess.Clone()
	m.sessions[sess.ID] = stored
	m.hub.Publish(Change{ID: sess.ID, Session: stored})
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; !exists {
		return ErrNotFound
	}
	delete(m.sessions, id)
	m.hub.Publish(Change{ID: id, Deleted: true})
	return nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, id string) (<-chan Change, error) {
	return m.hub.Subscribe(ctx, id), nil
}

func (m *MemoryStore) Close() error {
	m.hub.Close()
	return nil
}

// MemoryArchive 内存对局归档
type MemoryArchive struct {
	mu      sync.RWMutex
	matches []models.MatchRecord
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{}
}

func (a *MemoryArchive) SaveMatch(ctx context.Context, rec *models.MatchRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.matches = append(a.matches, *rec)
	return nil
}

func (a *MemoryArchive) PlayerStats(ctx context.Context, userID string) (*models.PlayerStats, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := &models.PlayerStats{UserID: userID}
	for _, m := range a.matches {
		switch userID {
		case m.WinnerID:
			stats.Wins++
		case m.LoserID:
			stats.Losses++
		default:
			continue
		}
		stats.TotalGames++
	}
	return stats, nil
}
