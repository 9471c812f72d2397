package state

import (
	"errors"
	"sync"
	"time"

	"github.com/wfunc/gonu/logger"
	"github.com/wfunc/gonu/models"
	"github.com/wfunc/gonu/rules"
)

// 状态机接口
type StateMachine interface {
	ChangeState(state State) error
	ForceState(state State)
	GetCurrentState() State
	AddTransition(from State, to State, condition func() bool) error
}

// 状态接口
type State interface {
	OnEnter()
	OnExit()
	OnUpdate(now time.Time)
	GetID() string
	HandleAction(player Player, action Action) error
}

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// 基础状态机实现
type BaseStateMachine struct {
	currentState State
	transitions  map[string]map[string]func() bool // fromState -> toState -> condition
	mutex        sync.RWMutex
}

func NewBaseStateMachine(initialState State) *BaseStateMachine {
	machine := &BaseStateMachine{
		currentState: initialState,
		transitions:  make(map[string]map[string]func() bool),
	}
	initialState.OnEnter()
	return machine
}

func (sm *BaseStateMachine) ChangeState(newState State) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	currentID := sm.currentState.GetID()
	newID := newState.GetID()

	// 检查是否有转换条件
	if conditions, exists := sm.transitions[currentID]; exists {
		if condition, exists := conditions[newID]; exists {
			if condition != nil && !condition() {
				return ErrTransitionNotAllowed
			}
		}
	}

	sm.swap(newState)
	return nil
}

// ForceState switches without consulting the transition table.
func (sm *BaseStateMachine) ForceState(newState State) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	sm.swap(newState)
}

func (sm *BaseStateMachine) swap(newState State) {
	sm.currentState.OnExit()
	sm.currentState = newState
	sm.currentState.OnEnter()
}

func (sm *BaseStateMachine) GetCurrentState() State {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

func (sm *BaseStateMachine) AddTransition(from State, to State, condition func() bool) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	fromID := from.GetID()
	toID := to.GetID()

	if _, exists := sm.transitions[fromID]; !exists {
		sm.transitions[fromID] = make(map[string]func() bool)
	}

	sm.transitions[fromID][toID] = condition
	return nil
}

// 房间状态基础结构
type RoomStateBase struct {
	ID   string
	Room RoomContext
}

func (s *RoomStateBase) GetID() string {
	return s.ID
}

func (s *RoomStateBase) OnEnter() {
	logger.Log.Debugf("room %s enters %s", s.Room.GetID(), s.ID)
}

func (s *RoomStateBase) OnExit() {
	// 默认实现
}

func (s *RoomStateBase) OnUpdate(now time.Time) {
	// 默认实现
}

func (s *RoomStateBase) HandleAction(player Player, action Action) error {
	return rules.Reject("%s is not available while the game is %s", action.Type, s.ID)
}

// leave is shared by every status: the owner leaving outside a match destroys the record.
func (s *RoomStateBase) leave(player Player) error {
	next, deleted, err := s.Room.Rulebook().Leave(s.Room.Session(), player.GetUserID(), s.Room.Now())
	if err != nil {
		return err
	}
	if deleted {
		return s.Room.Destroy()
	}
	return s.Room.Commit(next)
}

func (s *RoomStateBase) ready(player Player) error {
	next, err := s.Room.Rulebook().ToggleReady(s.Room.Session(), player.GetUserID(), s.Room.Now())
	if err != nil {
		return err
	}
	return s.Room.Commit(next)
}

// NewWaitingState creates a new waiting state.
func NewWaitingState(room RoomContext) *WaitingState {
	return &WaitingState{
		RoomStateBase: RoomStateBase{
			ID:   string(models.StatusWaiting),
			Room: room,
		},
	}
}

// 等待状态：入座、准备、倒计时
type WaitingState struct {
	RoomStateBase
}

func (s *WaitingState) HandleAction(player Player, action Action) error {
	switch action.Type {
	case ActionJoin:
		next, err := s.Room.Rulebook().Join(s.Room.Session(), player.GetUserID(), s.Room.Now())
		if err != nil {
			return err
		}
		return s.Room.Commit(next)
	case ActionReady:
		return s.ready(player)
	case ActionLeave:
		return s.leave(player)
	}
	return s.RoomStateBase.HandleAction(player, action)
}

// OnUpdate 倒计时结束后开始对局；重复触发无副作用
func (s *WaitingState) OnUpdate(now time.Time) {
	rb := s.Room.Rulebook()
	sess := s.Room.Session()
	if !rb.Countdown.Elapsed(sess, now) {
		return
	}
	next, err := rb.StartMatch(sess, now)
	if err != nil {
		if !errors.Is(err, ErrNoChange) {
			logger.Log.Debugf("room %s: countdown elapsed but match not started: %v", s.Room.GetID(), err)
		}
		return
	}
	if err := s.Room.Commit(next); err != nil {
		logger.Log.Warnf("room %s: failed to start match: %v", s.Room.GetID(), err)
	}
}
