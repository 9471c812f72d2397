package state

import (
	"errors"
	"time"

	"github.com/wfunc/gonu/logger"
	"github.com/wfunc/gonu/models"
)

// PlayingState 对局进行中：落子、走子、认输、离开、读秒
type PlayingState struct {
	RoomStateBase
}

// NewPlayingState 创建对局状态
func NewPlayingState(room RoomContext) *PlayingState {
	return &PlayingState{
		RoomStateBase: RoomStateBase{
			ID:   string(models.StatusPlaying),
			Room: room,
		},
	}
}

func (s *PlayingState) OnEnter() {
	sess := s.Room.Session()
	logger.Log.Infof("房间 %s 开始对局, map=%s, first=%s", s.Room.GetID(), sess.MapID, sess.CurrentTurn)
}

// HandleAction handles actions from players.
func (s *PlayingState) HandleAction(player Player, action Action) error {
	rb := s.Room.Rulebook()
	sess := s.Room.Session()
	now := s.Room.Now()

	var (
		next *models.GameSession
		err  error
	)
	switch action.Type {
	case ActionPlace:
		next, err = rb.ApplyPlacement(sess, player.GetUserID(), action.Node, now)
	case ActionMove:
		next, err = rb.ApplyMove(sess, player.GetUserID(), action.From, action.To, now)
	case ActionSurrender:
		next, err = rb.Surrender(sess, player.GetUserID(), now)
	case ActionLeave:
		return s.leave(player)
	default:
		return s.RoomStateBase.HandleAction(player, action)
	}
	if err != nil {
		return err
	}
	return s.Room.Commit(next)
}

// OnUpdate 读秒；时钟写入允许后写覆盖
func (s *PlayingState) OnUpdate(now time.Time) {
	next, err := s.Room.Rulebook().Tick(s.Room.Session(), now)
	if err != nil {
		if !errors.Is(err, ErrNoChange) {
			logger.Log.Debugf("room %s: clock: %v", s.Room.GetID(), err)
		}
		return
	}
	if err := s.Room.Commit(next); err != nil {
		logger.Log.Debugf("room %s: clock write dropped: %v", s.Room.GetID(), err)
	}
}

// FinishedState 对局结束，等待再来一局
type FinishedState struct {
	RoomStateBase
}

func NewFinishedState(room RoomContext) *FinishedState {
	return &FinishedState{
		RoomStateBase: RoomStateBase{
			ID:   string(models.StatusFinished),
			Room: room,
		},
	}
}

func (s *FinishedState) OnEnter() {
	logger.Log.Infof("房间 %s 对局结束, winner=%s", s.Room.GetID(), s.Room.Session().WinnerID)
}

func (s *FinishedState) HandleAction(player Player, action Action) error {
	switch action.Type {
	case ActionReady:
		return s.ready(player)
	case ActionLeave:
		return s.leave(player)
	}
	return s.RoomStateBase.HandleAction(player, action)
}
