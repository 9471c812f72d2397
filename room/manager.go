package room

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/gonu/clock"
	"github.com/wfunc/gonu/logger"
	"github.com/wfunc/gonu/models"
	"github.com/wfunc/gonu/monitor"
	"github.com/wfunc/gonu/persistence"
	"github.com/wfunc/gonu/rules"
	"github.com/wfunc/gonu/state"
	"github.com/wfunc/gonu/timer"
)

const defaultTickInterval = 250 * time.Millisecond

// ManagerOptions configures the rooms a Manager starts.
type ManagerOptions struct {
	Store    persistence.Store
	Recorder MatchRecorder
	Monitor  *monitor.Monitor
	Clock    clock.Settings
	// TickInterval is how often each room runs its countdown and clock.
	TickInterval time.Duration
	Now          func() time.Time
}

// Manager 管理本进程内的所有房间
type Manager struct {
	opts        ManagerOptions
	broadcaster Broadcaster
	timers      *timer.TimerManager
	rooms       map[string]*Room
	timerIDs    map[string]int64
	mutex       sync.RWMutex
	recording   sync.WaitGroup
}

// NewRoomManager 创建一个新的房间管理器
func NewRoomManager(opts ManagerOptions) *Manager {
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		opts:     opts,
		timers:   timer.NewTimerManager(opts.TickInterval / 5),
		rooms:    make(map[string]*Room),
		timerIDs: make(map[string]int64),
	}
}

// SetBroadcaster must be called before the first game is created or opened.
func (m *Manager) SetBroadcaster(b Broadcaster) {
	m.broadcaster = b
}

func (m *Manager) roomOptions() Options {
	return Options{
		Store:       m.opts.Store,
		Broadcaster: m.broadcaster,
		Monitor:     m.opts.Monitor,
		Clock:       m.opts.Clock,
		Now:         m.opts.Now,
		Hooks: Hooks{
			Finished: m.onFinished,
			Closed:   m.forget,
		},
	}
}

// CreateGame stores a new waiting session owned by owner and starts its room.
func (m *Manager) CreateGame(ctx context.Context, owner, mapID, title string) (*Room, error) {
	if owner == "" {
		return nil, rules.Reject("sign in to create a game")
	}
	rb, err := state.NewRulebook(mapID, m.opts.Clock)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	room, err := Open(ctx, id, m.roomOptions(), func(ctx context.Context) (*models.GameSession, error) {
		sess := rb.NewSession(id, title, owner, m.opts.Now())
		start := time.Now()
		err := m.opts.Store.Create(ctx, sess)
		m.opts.Monitor.ObserveStoreLatency("create", time.Since(start))
		return sess, err
	})
	if err != nil {
		return nil, err
	}

	m.mutex.Lock()
	m.track(room)
	m.mutex.Unlock()

	logger.Log.Infof("创建对局 %s, map=%s, owner=%s", id, mapID, owner)
	return room, nil
}

// OpenGame returns the running room of id, starting one from the stored
// record if this process has none. The store is read without holding the
// manager lock; when two opens of the same game race, the first one tracked wins.
func (m *Manager) OpenGame(ctx context.Context, id string) (*Room, error) {
	if room, exists := m.GetRoom(id); exists && !room.Closed() {
		return room, nil
	}

	room, err := Open(ctx, id, m.roomOptions(), func(ctx context.Context) (*models.GameSession, error) {
		start := time.Now()
		sess, err := m.opts.Store.Read(ctx, id)
		m.opts.Monitor.ObserveStoreLatency("read", time.Since(start))
		return sess, err
	})
	if err != nil {
		return nil, err
	}

	m.mutex.Lock()
	if existing, exists := m.rooms[id]; exists {
		if !existing.Closed() {
			m.mutex.Unlock()
			room.discard()
			return existing, nil
		}
		// 已关闭但尚未移除
		m.untrack(id)
	}
	m.track(room)
	m.mutex.Unlock()
	return room, nil
}

// track registers room and its tick timer. Caller holds the lock.
func (m *Manager) track(room *Room) {
	m.rooms[room.ID] = room
	m.timerIDs[room.ID] = m.timers.AddTimer(m.opts.TickInterval, m.opts.TickInterval, room.Tick)
	m.opts.Monitor.SetActiveRooms(len(m.rooms))
}

// RemoveRoom 从管理器中移除并关闭一个房间
func (m *Manager) RemoveRoom(id string) {
	m.mutex.Lock()
	room, exists := m.rooms[id]
	if exists {
		m.untrack(id)
	}
	m.mutex.Unlock()

	if exists {
		room.Close()
	}
}

// forget drops a room that stopped on its own, unless a newer room for the
// same game has replaced it.
func (m *Manager) forget(room *Room) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.rooms[room.ID] == room {
		m.untrack(room.ID)
	}
}

// untrack removes id and its timer. Caller holds the lock.
func (m *Manager) untrack(id string) {
	m.timers.RemoveTimer(m.timerIDs[id])
	delete(m.rooms, id)
	delete(m.timerIDs, id)
	m.opts.Monitor.SetActiveRooms(len(m.rooms))
}

// GetRoom 从管理器中获取一个房间
func (m *Manager) GetRoom(id string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[id]
	return room, exists
}

func (m *Manager) Rooms() []*Room {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// Close stops every room and waits for pending match records.
func (m *Manager) Close() {
	m.timers.Stop()

	m.mutex.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for id, room := range m.rooms {
		rooms = append(rooms, room)
		delete(m.rooms, id)
		delete(m.timerIDs, id)
	}
	m.opts.Monitor.SetActiveRooms(0)
	m.mutex.Unlock()

	for _, room := range rooms {
		room.Close()
		<-room.Done()
	}
	m.recording.Wait()
}

func (m *Manager) onFinished(sess *models.GameSession) {
	m.opts.Monitor.IncMatchesFinished(sess.MapID)
	if m.opts.Recorder == nil {
		return
	}

	m.recording.Add(1)
	go func() {
		defer m.recording.Done()
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := m.opts.Recorder.RecordFinished(ctx, sess); err != nil {
			logger.Log.Errorw("record finished match failed", "game", sess.ID, "error", err)
		}
	}()
}
