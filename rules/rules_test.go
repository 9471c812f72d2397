package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/gonu/models"
)

const (
	alice = "alice" // black
	bob   = "bob"   // white
)

func newPlaying(t *testing.T, mapID string) (Engine, *models.GameSession) {
	t.Helper()
	e, err := Lookup(mapID)
	require.NoError(t, err)
	sess := &models.GameSession{
		ID:          "g1",
		MapID:       mapID,
		Status:      models.StatusPlaying,
		Player1ID:   alice,
		Player2ID:   bob,
		CurrentTurn: alice,
	}
	e.Setup(sess)
	return e, sess
}

// withBoard replaces the occupant map, filling missing nodes with Empty.
func withBoard(e Engine, sess *models.GameSession, stones map[string]models.Stone) {
	sess.Occupant = make(map[string]models.Stone)
	for _, id := range e.Board().NodeIDs() {
		sess.Occupant[id] = stones[id]
	}
	sess.BlackCount = sess.CountStones(models.Black)
	sess.WhiteCount = sess.CountStones(models.White)
}

func TestLookup(t *testing.T) {
	for mapID, v := range map[string]Variant{"four-line": FourLine, "lone-well": LoneWell, "pumpkin": Pumpkin} {
		e, err := Lookup(mapID)
		require.NoError(t, err)
		assert.Equal(t, v, e.Variant())
	}

	_, err := Lookup("go-9x9")
	assert.ErrorIs(t, err, ErrUnsupportedVariant)

	_, err = ParseVariant("mancala")
	assert.ErrorIs(t, err, ErrUnsupportedVariant)
}

func TestSetup(t *testing.T) {
	e, sess := newPlaying(t, "four-line")
	assert.Equal(t, models.PhasePlacement, sess.Phase)
	assert.Len(t, sess.Occupant, len(e.Board().Nodes))
	assert.Zero(t, sess.BlackCount)

	_, sess = newPlaying(t, "pumpkin")
	assert.Equal(t, models.PhaseMovement, sess.Phase)
	assert.Equal(t, 3, sess.BlackCount)
	assert.Equal(t, 3, sess.WhiteCount)
	assert.Equal(t, models.Black, sess.Occupant["n0,0"])
	assert.Equal(t, models.White, sess.Occupant["n2,4"])
}

func TestVerdictErr(t *testing.T) {
	assert.NoError(t, Verdict{Valid: true}.Err())
	err := Verdict{Reason: "nope"}.Err()
	assert.True(t, IsRejection(err))
	assert.EqualError(t, err, "nope")
}

// Scenario A
func TestFourLine_DiagonalWins(t *testing.T) {
	e, sess := newPlaying(t, "four-line")
	sess.Phase = models.PhaseMovement
	withBoard(e, sess, map[string]models.Stone{"n0,0": models.Black, "n1,1": models.Black, "n2,2": models.Black})

	assert.True(t, e.CheckWin(sess, models.Black))
	assert.False(t, e.CheckWin(sess, models.White))
}

func TestFourLine_RowsAndColumns(t *testing.T) {
	e, sess := newPlaying(t, "four-line")
	withBoard(e, sess, map[string]models.Stone{"n0,2": models.White, "n1,2": models.White, "n2,2": models.White})
	assert.True(t, e.CheckWin(sess, models.White))

	withBoard(e, sess, map[string]models.Stone{"n1,0": models.Black, "n1,1": models.Black, "n1,2": models.Black})
	assert.True(t, e.CheckWin(sess, models.Black))

	withBoard(e, sess, map[string]models.Stone{"n0,2": models.Black, "n1,1": models.Black, "n2,0": models.Black})
	assert.True(t, e.CheckWin(sess, models.Black))

	withBoard(e, sess, map[string]models.Stone{"n0,0": models.Black, "n0,1": models.Black, "n1,2": models.Black})
	assert.False(t, e.CheckWin(sess, models.Black))
}

// Scenario B
func TestFourLine_QuotaSwitchesToMovementOnce(t *testing.T) {
	e, sess := newPlaying(t, "four-line")
	order := []string{"n0,0", "n0,1", "n0,2", "n1,0", "n2,2", "n1,2", "n2,0", "n2,1"}

	for i, node := range order {
		actor := sess.CurrentTurn
		require.Equal(t, models.PhasePlacement, sess.Phase, "placement %d", i)
		require.True(t, e.CanPlace(sess, actor, node).Valid, "placement %d at %s", i, node)
		sess = e.Place(sess, actor, node)
		assert.Equal(t, sess.OpponentOf(actor), sess.CurrentTurn, "turn must alternate")
	}

	assert.Equal(t, models.PhaseMovement, sess.Phase)
	assert.Equal(t, 4, sess.BlackCount)
	assert.Equal(t, 4, sess.WhiteCount)
	assert.Equal(t, alice, sess.CurrentTurn)

	v := e.CanPlace(sess, alice, "n1,1")
	assert.False(t, v.Valid)
	assert.Contains(t, v.Reason, "placement stage is over")
}

func TestFourLine_CanPlaceRejections(t *testing.T) {
	e, sess := newPlaying(t, "four-line")

	assert.False(t, e.CanPlace(sess, bob, "n1,1").Valid, "out of turn")
	assert.False(t, e.CanPlace(sess, "mallory", "n1,1").Valid, "not a player")
	assert.False(t, e.CanPlace(sess, alice, "n9,9").Valid, "unknown node")

	sess = e.Place(sess, alice, "n1,1")
	assert.False(t, e.CanPlace(sess, bob, "n1,1").Valid, "occupied")

	sess.CurrentTurn = alice
	sess.BlackCount = 4
	v := e.CanPlace(sess, alice, "n0,0")
	assert.False(t, v.Valid)
	assert.Contains(t, v.Reason, "all 4 stones")
}

func TestFourLine_PlaceDoesNotMutateInput(t *testing.T) {
	e, sess := newPlaying(t, "four-line")
	next := e.Place(sess, alice, "n1,1")

	assert.Equal(t, models.Empty, sess.Occupant["n1,1"])
	assert.Equal(t, alice, sess.CurrentTurn)
	assert.Equal(t, models.Black, next.Occupant["n1,1"])
	assert.Equal(t, 1, next.BlackCount)
}

func TestFourLine_KingStep(t *testing.T) {
	e, sess := newPlaying(t, "four-line")
	sess.Phase = models.PhaseMovement
	withBoard(e, sess, map[string]models.Stone{"n0,0": models.Black, "n2,2": models.White})

	assert.True(t, e.CanMove(sess, alice, "n0,0", "n1,1").Valid, "diagonal step")
	assert.True(t, e.CanMove(sess, alice, "n0,0", "n0,1").Valid, "orthogonal step")
	assert.False(t, e.CanMove(sess, alice, "n0,0", "n0,2").Valid, "two squares")
	assert.False(t, e.CanMove(sess, alice, "n2,2", "n2,1").Valid, "opponent's stone")
	assert.False(t, e.CanMove(sess, alice, "n0,1", "n0,2").Valid, "empty origin")

	next := e.Move(sess, alice, "n0,0", "n1,1")
	assert.Equal(t, models.Empty, next.Occupant["n0,0"])
	assert.Equal(t, models.Black, next.Occupant["n1,1"])
	assert.Equal(t, bob, next.CurrentTurn)
	assert.Equal(t, models.PhaseMovement, next.Phase)
	assert.Equal(t, 1, next.MoveCount)
}

func TestFourLine_NoMovesDuringPlacement(t *testing.T) {
	e, sess := newPlaying(t, "four-line")
	sess = e.Place(sess, alice, "n0,0")
	sess.CurrentTurn = alice
	assert.False(t, e.CanMove(sess, alice, "n0,0", "n0,1").Valid)
}

func TestFourLine_BlockedOpponentLoses(t *testing.T) {
	e, sess := newPlaying(t, "four-line")
	sess.Phase = models.PhaseMovement
	// White in the corner with every neighbour taken by black.
	withBoard(e, sess, map[string]models.Stone{
		"n0,0": models.White,
		"n0,1": models.Black, "n1,0": models.Black, "n1,1": models.Black,
	})
	assert.True(t, e.CheckWin(sess, models.Black))

	sess.Phase = models.PhasePlacement
	assert.False(t, e.CheckWin(sess, models.Black), "blocking only counts once stones move")
}

func TestCheckWin_IsDeterministic(t *testing.T) {
	e, sess := newPlaying(t, "pumpkin")
	first := e.CheckWin(sess, models.Black)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, e.CheckWin(sess.Clone(), models.Black))
	}
}

// Scenario C
func TestLoneWell_OpeningRestriction(t *testing.T) {
	e, sess := newPlaying(t, "lone-well")

	v := e.CanMove(sess, alice, "n1,0", "n1,1")
	assert.False(t, v.Valid)
	assert.NotEmpty(t, v.Reason)

	assert.True(t, e.CanMove(sess, alice, "n2,1", "n1,1").Valid)

	// Once black has moved, the same step becomes legal.
	sess = e.Move(sess, alice, "n2,1", "n1,1")
	assert.Equal(t, 1, sess.MoveCount)
	sess.MoveCount = 2
	sess.CurrentTurn = alice
	withBoard(e, sess, map[string]models.Stone{"n1,0": models.Black, "n2,1": models.Black, "n0,1": models.White, "n1,2": models.White})
	assert.True(t, e.CanMove(sess, alice, "n1,0", "n1,1").Valid)
}

func TestLoneWell_EdgesOnly(t *testing.T) {
	e, sess := newPlaying(t, "lone-well")
	withBoard(e, sess, map[string]models.Stone{"n1,0": models.Black, "n2,1": models.Black, "n0,1": models.White, "n1,1": models.White})
	sess.MoveCount = 2
	assert.False(t, e.CanMove(sess, alice, "n2,1", "n1,2").Valid, "the well side has no line")
}

func TestLoneWell_NoPlacement(t *testing.T) {
	e, sess := newPlaying(t, "lone-well")
	v := e.CanPlace(sess, alice, "n1,1")
	assert.False(t, v.Valid)
	assert.Contains(t, v.Reason, "no placement")
}

func TestLoneWell_BlockedWins(t *testing.T) {
	e, sess := newPlaying(t, "lone-well")
	// White on n1,2 and n2,1: n1,2 reaches n0,1 and n1,1, n2,1 reaches n1,0 and n1,1.
	withBoard(e, sess, map[string]models.Stone{
		"n0,1": models.Black, "n1,1": models.Black, "n1,0": models.Empty,
		"n1,2": models.White, "n2,1": models.White,
	})
	assert.False(t, e.CheckWin(sess, models.Black), "white can still reach n1,0")

	withBoard(e, sess, map[string]models.Stone{
		"n0,1": models.Black, "n1,1": models.Black, "n1,0": models.Black,
		"n1,2": models.White,
	})
	assert.True(t, e.CheckWin(sess, models.Black))
}

// Scenario D
func TestPumpkin_NoReentry(t *testing.T) {
	e, sess := newPlaying(t, "pumpkin")

	require.True(t, e.CanMove(sess, alice, "n0,0", "n0,1").Valid)
	sess = e.Move(sess, alice, "n0,0", "n0,1")
	sess.CurrentTurn = alice

	v := e.CanMove(sess, alice, "n0,1", "n0,0")
	assert.False(t, v.Valid)
	assert.Contains(t, v.Reason, "cannot return")
}

func TestPumpkin_InsideStartingLine(t *testing.T) {
	e, sess := newPlaying(t, "pumpkin")
	withBoard(e, sess, map[string]models.Stone{
		"n0,0": models.Black, "n2,0": models.Black, "n1,1": models.Black,
		"n0,4": models.White, "n1,4": models.White, "n2,4": models.White,
	})
	assert.True(t, e.CanMove(sess, alice, "n0,0", "n1,0").Valid, "flank to centre")

	withBoard(e, sess, map[string]models.Stone{
		"n1,0": models.Black, "n0,1": models.Black, "n2,1": models.Black,
		"n0,4": models.White, "n1,4": models.White, "n2,4": models.White,
	})
	v := e.CanMove(sess, alice, "n1,0", "n0,0")
	assert.False(t, v.Valid, "centre to flank")
	assert.Contains(t, v.Reason, "toward the centre")
}

func TestPumpkin_OpponentLineIsClosed(t *testing.T) {
	e, sess := newPlaying(t, "pumpkin")
	withBoard(e, sess, map[string]models.Stone{
		"n0,3": models.Black, "n1,1": models.Black, "n2,1": models.Black,
		"n1,4": models.White, "n2,4": models.White, "n2,2": models.White,
	})
	v := e.CanMove(sess, alice, "n0,3", "n0,4")
	assert.False(t, v.Valid)
	assert.Contains(t, v.Reason, "opponent's starting line")
}

func TestPumpkin_WinHonoursLineRules(t *testing.T) {
	e, sess := newPlaying(t, "pumpkin")
	// White's only stone sits at n0,3; its free neighbours are inside white's own
	// line (n0,4, re-entry) or already taken.
	withBoard(e, sess, map[string]models.Stone{
		"n0,3": models.White,
		"n0,2": models.Black, "n1,3": models.Black, "n1,2": models.Black,
	})
	assert.True(t, e.CheckWin(sess, models.Black))

	sess.Occupant["n1,2"] = models.Empty
	sess.BlackCount--
	assert.False(t, e.CheckWin(sess, models.Black))
}

func TestWin_NoOpponentStonesIsNotAWin(t *testing.T) {
	e, sess := newPlaying(t, "lone-well")
	withBoard(e, sess, map[string]models.Stone{"n1,1": models.Black})
	assert.False(t, e.CheckWin(sess, models.Black))
}
