// room/room.go
package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wfunc/gonu/clock"
	"github.com/wfunc/gonu/logger"
	"github.com/wfunc/gonu/models"
	"github.com/wfunc/gonu/monitor"
	"github.com/wfunc/gonu/network"
	"github.com/wfunc/gonu/persistence"
	"github.com/wfunc/gonu/rules"
	"github.com/wfunc/gonu/session"
	"github.com/wfunc/gonu/state"
)

const storeTimeout = 5 * time.Second

var (
	ErrRoomClosed = errors.New("room closed")
	errDryRun     = errors.New("dry run")
)

// 关闭原因
const (
	ReasonOwnerLeft    = "the owner closed the game"
	ReasonDeleted      = "the game no longer exists"
	ReasonInconsistent = "the game record became inconsistent"
	ReasonShutdown     = "the server is shutting down"
)

// Hooks are called on the room's goroutine.
type Hooks struct {
	// Finished fires when this room commits the write that ends a match.
	Finished func(sess *models.GameSession)
	// Closed fires once when the room stops on its own.
	Closed func(r *Room)
}

// Options wires a room to its collaborators.
type Options struct {
	Store       persistence.Store
	Broadcaster Broadcaster
	Monitor     *monitor.Monitor
	Clock       clock.Settings
	Hooks       Hooks
	// Now defaults to time.Now.
	Now func() time.Time
}

type command struct {
	player state.Player
	action state.Action
	reply  chan error
}

// Room is the single writer of one game session. Actions, clock ticks and
// change-feed snapshots are all applied on its goroutine, against its own
// authoritative copy of the record.
type Room struct {
	ID          string
	store       persistence.Store
	rb          *state.Rulebook
	sm          *state.SessionMachine
	broadcaster Broadcaster
	monitor     *monitor.Monitor
	hooks       Hooks
	now         func() time.Time

	// 仅由房间协程读写
	sess          *models.GameSession
	dryRun        bool
	lastCountdown int

	snapshot atomic.Pointer[models.GameSession]

	Players     map[string]*session.Session // sessionID -> session
	playerMutex sync.RWMutex

	cmds        chan command
	ticks       chan struct{}
	feed        <-chan persistence.Change
	cancelFeed  context.CancelFunc
	closeChan   chan struct{}
	closeOnce   sync.Once
	closeReason atomic.Value
	done        chan struct{}
}

// Open subscribes to the record's change feed, loads the record with load and
// starts the room's loop. Subscribing first means no committed change between
// the load and the loop start is missed.
func Open(ctx context.Context, id string, opts Options, load func(context.Context) (*models.GameSession, error)) (*Room, error) {
	feedCtx, cancel := context.WithCancel(context.Background())
	feed, err := opts.Store.Subscribe(feedCtx, id)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", id, err)
	}

	sess, err := load(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	rb, err := state.NewRulebook(sess.MapID, opts.Clock)
	if err != nil {
		cancel()
		return nil, err
	}
	if err := rb.CheckRecord(sess); err != nil {
		cancel()
		return nil, fmt.Errorf("game %s: %w", id, err)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	r := &Room{
		ID:          id,
		store:       opts.Store,
		rb:          rb,
		broadcaster: opts.Broadcaster,
		monitor:     opts.Monitor,
		hooks:       opts.Hooks,
		now:         now,
		sess:        sess,
		Players:     make(map[string]*session.Session),
		cmds:        make(chan command),
		ticks:       make(chan struct{}, 1),
		feed:        feed,
		cancelFeed:  cancel,
		closeChan:   make(chan struct{}),
		done:        make(chan struct{}),
	}
	r.snapshot.Store(sess)
	r.sm = state.NewSessionMachine(r)

	go r.loop()
	return r, nil
}

// --- 实现 state.RoomContext 接口 ---

func (r *Room) GetID() string {
	return r.ID
}

func (r *Room) Session() *models.GameSession {
	return r.sess
}

func (r *Room) Rulebook() *state.Rulebook {
	return r.rb
}

func (r *Room) Now() time.Time {
	return r.now()
}

// Commit writes next over the version this room last observed. Losing the
// race refreshes the room from the store and returns persistence.ErrConflict.
func (r *Room) Commit(next *models.GameSession) error {
	if r.dryRun {
		return errDryRun
	}
	prev := r.sess

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	start := time.Now()
	err := r.store.Write(ctx, next, prev.Version)
	r.monitor.ObserveStoreLatency("write", time.Since(start))

	switch {
	case errors.Is(err, persistence.ErrConflict):
		r.monitor.IncWriteConflicts()
		r.refresh(ctx)
		return err
	case errors.Is(err, persistence.ErrNotFound):
		r.shutdown(ReasonDeleted, true)
		return fmt.Errorf("save game %s: %w", r.ID, err)
	case err != nil:
		logger.Log.Errorw("session write failed", "game", r.ID, "error", err)
		return fmt.Errorf("save game %s: %w", r.ID, err)
	}

	r.install(next)
	if err := r.sm.Follow(); err != nil {
		logger.Log.Warnw("state machine refused local transition", "game", r.ID, "from", r.sm.GetCurrentState().GetID(), "to", next.Status, "error", err)
		r.sm.Adopt()
	}
	if prev.Status == models.StatusPlaying && next.Status == models.StatusFinished && r.hooks.Finished != nil {
		r.hooks.Finished(next)
	}
	r.broadcastSync()
	return nil
}

// Destroy deletes the record and stops the room.
func (r *Room) Destroy() error {
	if r.dryRun {
		return errDryRun
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	start := time.Now()
	err := r.store.Delete(ctx, r.ID)
	r.monitor.ObserveStoreLatency("delete", time.Since(start))
	if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		logger.Log.Errorw("session delete failed", "game", r.ID, "error", err)
		return fmt.Errorf("delete game %s: %w", r.ID, err)
	}
	r.shutdown(ReasonOwnerLeft, true)
	return nil
}

// --- 房间核心逻辑 ---

// Do applies action for player and waits for the outcome. A rejection is a
// *rules.Rejection; nothing is retried.
func (r *Room) Do(ctx context.Context, player state.Player, action state.Action) error {
	cmd := command{player: player, action: action, reply: make(chan error, 1)}
	select {
	case r.cmds <- cmd:
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-r.done:
		select {
		case err := <-cmd.reply:
			return err
		default:
			return ErrRoomClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick asks the room to run its countdown and clock. It never blocks.
func (r *Room) Tick() {
	select {
	case r.ticks <- struct{}{}:
	default:
	}
}

// Snapshot returns a copy of the room's current record.
func (r *Room) Snapshot() *models.GameSession {
	return r.snapshot.Load().Clone()
}

// AddPlayer attaches a connection so it receives the room's broadcasts.
func (r *Room) AddPlayer(s *session.Session) bool {
	if r.Closed() {
		return false
	}
	r.playerMutex.Lock()
	defer r.playerMutex.Unlock()

	r.Players[s.ID] = s
	s.SetGameID(r.ID)
	return true
}

// RemovePlayer 从房间移除一个连接
func (r *Room) RemovePlayer(sessionID string) {
	r.playerMutex.Lock()
	defer r.playerMutex.Unlock()

	if player, exists := r.Players[sessionID]; exists {
		if player.GameID() == r.ID {
			player.SetGameID("")
		}
		delete(r.Players, sessionID)
	}
}

// GetSessions returns a slice of all sessions in the room (thread-safe).
func (r *Room) GetSessions() []*session.Session {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()

	sessions := make([]*session.Session, 0, len(r.Players))
	for _, s := range r.Players {
		sessions = append(sessions, s)
	}
	return sessions
}

// SendSync pushes the current record to one connection.
func (r *Room) SendSync(s *session.Session) error {
	sess := r.snapshot.Load()
	return s.SendMessage(network.MsgTypeGameSync, network.GameSync{
		Session:   sess,
		Countdown: r.countdownDisplay(sess, r.now()),
	})
}

// Closed reports whether the room has stopped or is stopping.
func (r *Room) Closed() bool {
	select {
	case <-r.closeChan:
		return true
	default:
		return false
	}
}

// CloseReason is why the room stopped, "" while it runs.
func (r *Room) CloseReason() string {
	reason, _ := r.closeReason.Load().(string)
	return reason
}

// Done is closed once the loop has exited.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

// Close stops the room without touching the record. It does not wait for the
// loop; use Done for that.
func (r *Room) Close() {
	r.shutdown(ReasonShutdown, false)
}

// discard stops a room that was never tracked, e.g. the loser of two
// concurrent opens. It has no players, so nobody is told.
func (r *Room) discard() {
	r.closeOnce.Do(func() {
		r.closeReason.Store(ReasonShutdown)
		close(r.closeChan)
	})
}

// loop 是房间的主循环
func (r *Room) loop() {
	defer close(r.done)
	defer r.cancelFeed()

	for {
		select {
		case <-r.closeChan:
			return
		case cmd := <-r.cmds:
			cmd.reply <- r.handle(cmd.player, cmd.action)
		case <-r.ticks:
			r.update(r.now())
		case c, ok := <-r.feed:
			if !ok {
				r.feed = nil
				continue
			}
			r.reconcile(c)
		}
	}
}

func (r *Room) handle(player state.Player, action state.Action) error {
	if r.Closed() {
		return ErrRoomClosed
	}
	err := r.sm.Handle(player, action)

	if errors.Is(err, persistence.ErrConflict) && !r.Closed() {
		// 写入冲突：用刚读到的记录重新校验，只报告，不重试
		r.dryRun = true
		again := r.sm.Handle(player, action)
		r.dryRun = false
		if rules.IsRejection(again) {
			err = again
		} else {
			err = rules.Reject("the game changed before your %s was saved; check the board and try again", action.Type)
		}
		r.monitor.ObserveAction(action.Type, monitor.OutcomeConflict)
	} else {
		r.monitor.ObserveAction(action.Type, outcomeOf(err))
	}

	if rules.IsRejection(err) {
		logger.Log.Infow("action rejected", "game", r.ID, "user", player.GetUserID(), "action", action.Type, "reason", err.Error())
	}
	return err
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return monitor.OutcomeOK
	case rules.IsRejection(err):
		return monitor.OutcomeRejected
	}
	return monitor.OutcomeError
}

// update 驱动倒计时与读秒
func (r *Room) update(now time.Time) {
	r.sm.Update(now)
	if r.Closed() {
		return
	}

	display := r.countdownDisplay(r.sess, now)
	if display != r.lastCountdown {
		r.lastCountdown = display
		if display > 0 {
			r.broadcast(network.MsgTypeCountdown, network.Countdown{GameID: r.ID, Seconds: display})
		}
	}
}

func (r *Room) countdownDisplay(sess *models.GameSession, now time.Time) int {
	if sess.Status != models.StatusWaiting {
		return 0
	}
	remaining, ok := r.rb.Countdown.Remaining(sess, now)
	if !ok {
		return 0
	}
	return clock.DisplaySeconds(remaining)
}

// reconcile applies a change-feed notification. Snapshots the room already
// has are ignored.
func (r *Room) reconcile(c persistence.Change) {
	if c.Stale {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		r.refresh(ctx)
		return
	}
	if c.Deleted {
		if r.sess.Status == models.StatusPlaying {
			r.monitor.IncAnomalies()
			logger.Log.Warnw("record deleted during a match", "game", r.ID)
			r.shutdown(ReasonInconsistent, true)
			return
		}
		r.shutdown(ReasonOwnerLeft, true)
		return
	}
	if c.Session == nil || c.Session.Version <= r.sess.Version {
		return
	}
	r.adopt(c.Session)
}

func (r *Room) refresh(ctx context.Context) {
	fresh, err := r.store.Read(ctx, r.ID)
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		r.shutdown(ReasonDeleted, true)
	case err != nil:
		logger.Log.Errorw("session refresh failed", "game", r.ID, "error", err)
	case fresh.Version > r.sess.Version:
		r.adopt(fresh)
	}
}

func (r *Room) adopt(fresh *models.GameSession) {
	if err := r.rb.CheckRecord(fresh); err != nil {
		r.monitor.IncAnomalies()
		logger.Log.Warnw("inconsistent snapshot", "game", r.ID, "version", fresh.Version, "error", err)
		r.shutdown(ReasonInconsistent, true)
		return
	}
	r.install(fresh)
	r.sm.Adopt()
	r.broadcastSync()
}

func (r *Room) install(sess *models.GameSession) {
	r.sess = sess
	r.snapshot.Store(sess)
}

func (r *Room) broadcastSync() {
	now := r.now()
	r.broadcast(network.MsgTypeGameSync, network.GameSync{
		Session:   r.sess,
		Countdown: r.countdownDisplay(r.sess, now),
	})
}

func (r *Room) broadcast(msgID uint16, v any) {
	if r.broadcaster == nil {
		return
	}
	data, err := network.Marshal(v)
	if err != nil {
		logger.Log.Errorw("encode broadcast failed", "game", r.ID, "msg", msgID, "error", err)
		return
	}
	if err := r.broadcaster.BroadcastToRoom(r.ID, msgID, data); err != nil {
		logger.Log.Debugw("broadcast failed", "game", r.ID, "msg", msgID, "error", err)
	}
}

// shutdown stops the loop once. Attached connections are told why and
// returned to the lobby.
func (r *Room) shutdown(reason string, notify bool) {
	r.closeOnce.Do(func() {
		r.closeReason.Store(reason)
		r.broadcast(network.MsgTypeGameClosed, network.GameClosed{GameID: r.ID, Reason: reason})
		close(r.closeChan)

		for _, s := range r.GetSessions() {
			r.RemovePlayer(s.ID)
		}
		logger.Log.Infof("房间 %s 关闭: %s", r.ID, reason)

		if notify && r.hooks.Closed != nil {
			r.hooks.Closed(r)
		}
	})
}
