package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/wfunc/gonu/clock"
	"github.com/wfunc/gonu/models"
	"github.com/wfunc/gonu/rules"
)

var (
	// ErrNoChange is returned by transitions that leave the record as it was.
	ErrNoChange = errors.New("no change")
	// ErrInconsistent marks a change notification that cannot follow from the
	// local view, e.g. the owner vanished.
	ErrInconsistent = errors.New("inconsistent session")
)

// Rulebook binds a variant's rule engine and the clock settings to the session
// transitions. Every method takes the last observed record and returns a fresh
// one; the input is never modified.
type Rulebook struct {
	Engine    rules.Engine
	Clock     *clock.Controller
	Countdown clock.Countdown
}

// NewRulebook looks up the engine for mapID.
func NewRulebook(mapID string, settings clock.Settings) (*Rulebook, error) {
	engine, err := rules.Lookup(mapID)
	if err != nil {
		return nil, err
	}
	return &Rulebook{
		Engine:    engine,
		Clock:     clock.NewController(settings),
		Countdown: clock.Countdown{Duration: settings.Countdown},
	}, nil
}

// NewSession builds the creation-time record with owner in the player1 seat.
func (rb *Rulebook) NewSession(id, title, owner string, now time.Time) *models.GameSession {
	sess := &models.GameSession{
		ID:        id,
		MapID:     rb.Engine.Board().ID,
		Title:     title,
		Status:    models.StatusWaiting,
		Player1ID: owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	rb.Engine.Setup(sess)
	rb.Clock.ResetAll(sess)
	return sess
}

// Join seats userID as player2.
func (rb *Rulebook) Join(sess *models.GameSession, userID string, now time.Time) (*models.GameSession, error) {
	switch {
	case userID == "":
		return nil, rules.Reject("sign in to join a game")
	case sess.Status != models.StatusWaiting:
		return nil, rules.Reject("the game has already started")
	case userID == sess.Player1ID:
		return nil, rules.Reject("you created this game")
	case userID == sess.Player2ID:
		return nil, rules.Reject("you already joined this game")
	case sess.Player2ID != "":
		return nil, rules.Reject("the game is full")
	}
	next := sess.Clone()
	next.Player2ID = userID
	next.Player2Ready = false
	next.UpdatedAt = now
	return next, nil
}

// ToggleReady flips userID's ready flag. From finished it first rewinds the
// record for a rematch. Both flags true stamps the countdown anchor.
func (rb *Rulebook) ToggleReady(sess *models.GameSession, userID string, now time.Time) (*models.GameSession, error) {
	if !sess.IsPlayer(userID) {
		return nil, rules.Reject("you are not a player in this game")
	}
	var next *models.GameSession
	switch sess.Status {
	case models.StatusWaiting:
		next = sess.Clone()
	case models.StatusFinished:
		next = rb.rewind(sess)
	default:
		return nil, rules.Reject("ready is only available before a match")
	}

	ready := !next.Ready(userID)
	next.SetReady(userID, ready)
	if ready {
		if next.Player1Ready && next.Player2Ready {
			start := now
			next.CountdownStart = &start
		}
	} else {
		next.CountdownStart = nil
		next.WinnerID = ""
	}
	next.UpdatedAt = now
	return next, nil
}

// StartMatch moves a waiting record whose countdown has run out to playing.
// Calling it again once the record is playing returns ErrNoChange.
func (rb *Rulebook) StartMatch(sess *models.GameSession, now time.Time) (*models.GameSession, error) {
	if sess.Status == models.StatusPlaying {
		return nil, ErrNoChange
	}
	if sess.Status != models.StatusWaiting || !sess.Player1Ready || !sess.Player2Ready {
		return nil, rules.Reject("both players must be ready")
	}
	if !rb.Countdown.Elapsed(sess, now) {
		return nil, rules.Reject("the countdown is still running")
	}

	next := sess.Clone()
	next.Status = models.StatusPlaying
	next.Player1Ready, next.Player2Ready = false, false
	next.CountdownStart = nil
	next.WinnerID = ""
	next.CurrentTurn = next.PlayerFor(models.Black)
	next.MoveCount = 0
	started := now
	next.StartedAt = &started
	rb.Clock.ResetAll(next)
	anchor := now
	next.ClockAnchor = &anchor
	next.UpdatedAt = now
	return next, nil
}

// ApplyPlacement validates and applies a placement.
func (rb *Rulebook) ApplyPlacement(sess *models.GameSession, userID, node string, now time.Time) (*models.GameSession, error) {
	if sess.Status != models.StatusPlaying {
		return nil, rules.Reject("the game is not in progress")
	}
	if err := rb.Engine.CanPlace(sess, userID, node).Err(); err != nil {
		return nil, err
	}
	return rb.settle(rb.Engine.Place(sess, userID, node), userID, now), nil
}

// ApplyMove validates and applies a movement.
func (rb *Rulebook) ApplyMove(sess *models.GameSession, userID, from, to string, now time.Time) (*models.GameSession, error) {
	if sess.Status != models.StatusPlaying {
		return nil, rules.Reject("the game is not in progress")
	}
	if err := rb.Engine.CanMove(sess, userID, from, to).Err(); err != nil {
		return nil, err
	}
	return rb.settle(rb.Engine.Move(sess, userID, from, to), userID, now), nil
}

// settle finishes the game if the actor won, otherwise hands a fresh period
// to the next mover.
func (rb *Rulebook) settle(next *models.GameSession, actor string, now time.Time) *models.GameSession {
	next.UpdatedAt = now
	if rb.Engine.CheckWin(next, next.StoneOf(actor)) {
		rb.finish(next, actor)
		return next
	}
	rb.Clock.ResetForTurn(next, next.CurrentTurn, now)
	return next
}

// Surrender ends a running match in the opponent's favour.
func (rb *Rulebook) Surrender(sess *models.GameSession, userID string, now time.Time) (*models.GameSession, error) {
	if sess.Status != models.StatusPlaying {
		return nil, rules.Reject("you can only surrender during a match")
	}
	if !sess.IsPlayer(userID) {
		return nil, rules.Reject("you are not a player in this game")
	}
	next := sess.Clone()
	rb.finish(next, next.OpponentOf(userID))
	next.UpdatedAt = now
	return next, nil
}

// Leave removes userID from the game. deleted is true when the owner leaves
// outside a match; the record should then be destroyed.
func (rb *Rulebook) Leave(sess *models.GameSession, userID string, now time.Time) (next *models.GameSession, deleted bool, err error) {
	if !sess.IsPlayer(userID) {
		return nil, false, rules.Reject("you are not a player in this game")
	}
	owner := userID == sess.Player1ID

	if sess.Status == models.StatusPlaying {
		next = sess.Clone()
		rb.finish(next, next.OpponentOf(userID))
		next.UpdatedAt = now
		return next, false, nil
	}
	if owner {
		return nil, true, nil
	}

	if sess.Status == models.StatusFinished {
		next = rb.rewind(sess)
	} else {
		next = sess.Clone()
	}
	next.Player2ID = ""
	next.Player2Ready = false
	next.CountdownStart = nil
	next.UpdatedAt = now
	return next, false, nil
}

// ResetForRematch rewinds a finished record to its creation values, keeping
// both seats.
func (rb *Rulebook) ResetForRematch(sess *models.GameSession, now time.Time) (*models.GameSession, error) {
	if sess.Status != models.StatusFinished {
		return nil, rules.Reject("only a finished game can be replayed")
	}
	next := rb.rewind(sess)
	next.UpdatedAt = now
	return next, nil
}

// Tick charges the active player's clock. A clock that runs out ends the game.
func (rb *Rulebook) Tick(sess *models.GameSession, now time.Time) (*models.GameSession, error) {
	next := sess.Clone()
	switch rb.Clock.Advance(next, now) {
	case clock.Unchanged:
		return nil, ErrNoChange
	case clock.Expired:
		return rb.Expire(next, now)
	}
	return next, nil
}

// Expire ends the match against the player whose turn it is.
func (rb *Rulebook) Expire(sess *models.GameSession, now time.Time) (*models.GameSession, error) {
	if sess.Status != models.StatusPlaying || sess.CurrentTurn == "" {
		return nil, rules.Reject("no clock is running")
	}
	next := sess.Clone()
	rb.finish(next, next.OpponentOf(next.CurrentTurn))
	next.UpdatedAt = now
	return next, nil
}

func (rb *Rulebook) finish(next *models.GameSession, winner string) {
	next.Status = models.StatusFinished
	next.WinnerID = winner
	next.Player1Ready, next.Player2Ready = false, false
	next.CountdownStart = nil
	rb.Clock.ResetAll(next)
}

func (rb *Rulebook) rewind(sess *models.GameSession) *models.GameSession {
	next := sess.Clone()
	rb.Engine.Setup(next)
	rb.Clock.ResetAll(next)
	next.Status = models.StatusWaiting
	next.WinnerID = ""
	next.CountdownStart = nil
	next.CurrentTurn = ""
	next.Player1Ready, next.Player2Ready = false, false
	next.StartedAt = nil
	return next
}

// CheckConsistency flags snapshots that no local transition can produce.
func CheckConsistency(sess *models.GameSession) error {
	if sess == nil || sess.Player1ID == "" {
		return ErrInconsistent
	}
	if sess.Status == models.StatusPlaying && !sess.IsPlayer(sess.CurrentTurn) {
		return ErrInconsistent
	}
	if sess.Status == models.StatusFinished && sess.WinnerID == "" {
		return ErrInconsistent
	}
	return nil
}

// CheckRecord runs CheckConsistency and then checks sess against this
// rulebook's board: the occupant covers exactly the board's nodes and the
// stone counts match the occupant.
func (rb *Rulebook) CheckRecord(sess *models.GameSession) error {
	if err := CheckConsistency(sess); err != nil {
		return err
	}
	g := rb.Engine.Board()
	if sess.MapID != g.ID {
		return fmt.Errorf("%w: map %q on a %q board", ErrInconsistent, sess.MapID, g.ID)
	}
	if len(sess.Occupant) != len(g.Nodes) {
		return fmt.Errorf("%w: occupant has %d nodes, board has %d", ErrInconsistent, len(sess.Occupant), len(g.Nodes))
	}
	for id, stone := range sess.Occupant {
		if !g.HasNode(id) {
			return fmt.Errorf("%w: unknown node %q", ErrInconsistent, id)
		}
		if stone != models.Empty && stone != models.Black && stone != models.White {
			return fmt.Errorf("%w: node %s holds %d", ErrInconsistent, id, stone)
		}
	}
	if sess.BlackCount != sess.CountStones(models.Black) || sess.WhiteCount != sess.CountStones(models.White) {
		return fmt.Errorf("%w: counts %d/%d do not match the board", ErrInconsistent, sess.BlackCount, sess.WhiteCount)
	}
	return nil
}
