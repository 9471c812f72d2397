package state

import (
	"errors"
	"testing"
	"time"

	"github.com/wfunc/gonu/models"
	"github.com/wfunc/gonu/rules"
)

// MockRoom is a test double for the RoomContext interface.
type MockRoom struct {
	rb        *Rulebook
	sess      *models.GameSession
	now       time.Time
	sm        *SessionMachine
	commits   int
	destroyed bool
	commitErr error
}

func (r *MockRoom) GetID() string                { return r.sess.ID }
func (r *MockRoom) Session() *models.GameSession { return r.sess }
func (r *MockRoom) Rulebook() *Rulebook          { return r.rb }
func (r *MockRoom) Now() time.Time               { return r.now }
func (r *MockRoom) Destroy() error               { r.destroyed = true; return nil }

func (r *MockRoom) Commit(next *models.GameSession) error {
	if r.commitErr != nil {
		return r.commitErr
	}
	r.sess = next
	r.commits++
	return r.sm.Follow()
}

type testPlayer string

func (p testPlayer) GetUserID() string { return string(p) }

func newMockRoom(t *testing.T) *MockRoom {
	t.Helper()
	rb := rulebook(t, "four-line")
	r := &MockRoom{rb: rb, sess: rb.NewSession("g1", "", "alice", t0), now: t0}
	r.sm = NewSessionMachine(r)
	return r
}

func TestSessionMachine_FullMatch(t *testing.T) {
	r := newMockRoom(t)
	alice, bob := testPlayer("alice"), testPlayer("bob")

	if got := r.sm.GetCurrentState().GetID(); got != "waiting" {
		t.Fatalf("Expected initial state waiting, got %s", got)
	}

	for _, step := range []struct {
		player Player
		action Action
	}{
		{bob, Action{Type: ActionJoin}},
		{alice, Action{Type: ActionReady}},
		{bob, Action{Type: ActionReady}},
	} {
		if err := r.sm.Handle(step.player, step.action); err != nil {
			t.Fatalf("%s by %s failed: %v", step.action.Type, step.player.GetUserID(), err)
		}
	}

	r.sm.Update(t0.Add(2 * time.Second))
	if r.sm.GetCurrentState().GetID() != "waiting" {
		t.Fatal("Match should not start before the countdown elapses")
	}

	r.sm.Update(t0.Add(3100 * time.Millisecond))
	if got := r.sm.GetCurrentState().GetID(); got != "playing" {
		t.Fatalf("Expected playing after countdown, got %s", got)
	}
	if r.sess.CurrentTurn != "alice" {
		t.Errorf("Expected alice to move first, got %q", r.sess.CurrentTurn)
	}

	commits := r.commits
	r.sm.Update(t0.Add(3200 * time.Millisecond))
	if r.commits != commits {
		t.Error("A second countdown observation must not write again")
	}

	if err := r.sm.Handle(alice, Action{Type: ActionPlace, Node: "n1,1"}); err != nil {
		t.Fatalf("place failed: %v", err)
	}
	if r.sess.Occupant["n1,1"] != models.Black {
		t.Error("Expected a black stone on n1,1")
	}

	if err := r.sm.Handle(bob, Action{Type: ActionSurrender}); err != nil {
		t.Fatalf("surrender failed: %v", err)
	}
	if got := r.sm.GetCurrentState().GetID(); got != "finished" {
		t.Fatalf("Expected finished after surrender, got %s", got)
	}

	if err := r.sm.Handle(bob, Action{Type: ActionReady}); err != nil {
		t.Fatalf("rematch ready failed: %v", err)
	}
	if got := r.sm.GetCurrentState().GetID(); got != "waiting" {
		t.Fatalf("Expected waiting after rematch ready, got %s", got)
	}
}

func TestSessionMachine_ActionNotAvailable(t *testing.T) {
	r := newMockRoom(t)
	err := r.sm.Handle(testPlayer("alice"), Action{Type: ActionPlace, Node: "n0,0"})
	if !rules.IsRejection(err) {
		t.Fatalf("Expected a rejection, got %v", err)
	}
	if r.commits != 0 {
		t.Error("Rejected actions must not commit")
	}
}

func TestSessionMachine_OwnerLeaveDestroys(t *testing.T) {
	r := newMockRoom(t)
	if err := r.sm.Handle(testPlayer("alice"), Action{Type: ActionLeave}); err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	if !r.destroyed {
		t.Error("Owner leaving a waiting game should destroy it")
	}
}

func TestSessionMachine_CommitErrorPropagates(t *testing.T) {
	r := newMockRoom(t)
	r.commitErr = errors.New("store down")
	if err := r.sm.Handle(testPlayer("bob"), Action{Type: ActionJoin}); err != r.commitErr {
		t.Fatalf("Expected the commit error, got %v", err)
	}
	if r.sess.Player2ID != "" {
		t.Error("Failed commits must leave the room's copy untouched")
	}
}

func TestSessionMachine_AdoptSkipsGuards(t *testing.T) {
	r := newMockRoom(t)

	finished := r.sess.Clone()
	finished.Status = models.StatusFinished
	finished.WinnerID = "alice"
	r.sess = finished

	if err := r.sm.Follow(); err != ErrTransitionNotAllowed {
		t.Fatalf("Expected waiting -> finished to be refused locally, got %v", err)
	}
	r.sm.Adopt()
	if got := r.sm.GetCurrentState().GetID(); got != "finished" {
		t.Fatalf("Expected finished after Adopt, got %s", got)
	}
}
