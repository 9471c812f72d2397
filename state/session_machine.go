package state

import (
	"time"

	"github.com/wfunc/gonu/models"
)

// SessionMachine keys the room's state objects by session status.
type SessionMachine struct {
	*BaseStateMachine
	room   RoomContext
	states map[models.Status]State
}

// NewSessionMachine starts in the state matching the room's current record.
func NewSessionMachine(room RoomContext) *SessionMachine {
	waiting := NewWaitingState(room)
	playing := NewPlayingState(room)
	finished := NewFinishedState(room)

	m := &SessionMachine{
		room: room,
		states: map[models.Status]State{
			models.StatusWaiting:  waiting,
			models.StatusPlaying:  playing,
			models.StatusFinished: finished,
		},
	}
	m.BaseStateMachine = NewBaseStateMachine(m.target())

	never := func() bool { return false }
	m.AddTransition(waiting, playing, func() bool {
		sess := room.Session()
		return sess.Status == models.StatusPlaying && sess.IsPlayer(sess.CurrentTurn)
	})
	m.AddTransition(playing, finished, func() bool {
		sess := room.Session()
		return sess.Status == models.StatusFinished && sess.WinnerID != ""
	})
	m.AddTransition(finished, waiting, func() bool {
		return room.Session().Status == models.StatusWaiting
	})
	// 本地操作不会产生的跳转
	m.AddTransition(waiting, finished, never)
	m.AddTransition(playing, waiting, never)
	m.AddTransition(finished, playing, never)
	return m
}

func (m *SessionMachine) target() State {
	if s, ok := m.states[m.room.Session().Status]; ok {
		return s
	}
	return m.states[models.StatusWaiting]
}

// Follow moves to the state of a locally committed record, honouring the guards.
func (m *SessionMachine) Follow() error {
	target := m.target()
	if target == m.GetCurrentState() {
		return nil
	}
	return m.ChangeState(target)
}

// Adopt moves to the state of a record received from the change feed.
func (m *SessionMachine) Adopt() {
	target := m.target()
	if target != m.GetCurrentState() {
		m.ForceState(target)
	}
}

// Handle dispatches an action to the current state.
func (m *SessionMachine) Handle(player Player, action Action) error {
	return m.GetCurrentState().HandleAction(player, action)
}

// Update drives countdown and clock.
func (m *SessionMachine) Update(now time.Time) {
	m.GetCurrentState().OnUpdate(now)
}
