package rules

import (
	"github.com/wfunc/gonu/board"
	"github.com/wfunc/gonu/models"
)

// transitionFunc is a variant's adjacency rule for moving a stone of colour s.
type transitionFunc func(sess *models.GameSession, s models.Stone, from, to string) Verdict

// base holds the checks shared by every variant.
type base struct {
	graph *board.Graph
}

func (b *base) Board() *board.Graph { return b.graph }

func (b *base) quota() int { return b.graph.PiecesPerPlayer }

// Setup initialises occupant, phase and counts as at session creation.
func (b *base) Setup(sess *models.GameSession) {
	sess.Occupant = make(map[string]models.Stone, len(b.graph.Nodes))
	for _, id := range b.graph.NodeIDs() {
		sess.Occupant[id] = models.Empty
	}
	for _, id := range b.graph.Initial.Black {
		sess.Occupant[id] = models.Black
	}
	for _, id := range b.graph.Initial.White {
		sess.Occupant[id] = models.White
	}
	sess.BlackCount = len(b.graph.Initial.Black)
	sess.WhiteCount = len(b.graph.Initial.White)
	sess.MoveCount = 0
	if b.graph.Placement {
		sess.Phase = models.PhasePlacement
	} else {
		sess.Phase = models.PhaseMovement
	}
}

func (b *base) actorChecks(sess *models.GameSession, actor string) Verdict {
	if sess.StoneOf(actor) == models.Empty {
		return deny("you are not a player in this game")
	}
	if sess.CurrentTurn != actor {
		return deny("it is not your turn")
	}
	return ok
}

func (b *base) canPlace(sess *models.GameSession, actor, node string) Verdict {
	if !b.graph.Placement {
		return deny("this variant has no placement stage")
	}
	if sess.Phase != models.PhasePlacement {
		return deny("the placement stage is over")
	}
	if v := b.actorChecks(sess, actor); !v.Valid {
		return v
	}
	if !b.graph.HasNode(node) {
		return deny("unknown node %q", node)
	}
	if sess.Occupant[node] != models.Empty {
		return deny("node %s is already occupied", node)
	}
	stone := sess.StoneOf(actor)
	if placed(sess, stone) >= b.quota() {
		return deny("%s has already placed all %d stones", stone, b.quota())
	}
	return ok
}

func (b *base) place(sess *models.GameSession, actor, node string) *models.GameSession {
	next := sess.Clone()
	stone := next.StoneOf(actor)
	next.Occupant[node] = stone
	if stone == models.Black {
		next.BlackCount++
	} else {
		next.WhiteCount++
	}
	next.CurrentTurn = next.OpponentOf(actor)
	if next.BlackCount >= b.quota() && next.WhiteCount >= b.quota() {
		next.Phase = models.PhaseMovement
	}
	return next
}

func (b *base) canMove(sess *models.GameSession, actor, from, to string, rule transitionFunc) Verdict {
	if sess.Phase != models.PhaseMovement {
		return deny("stones cannot move during the placement stage")
	}
	if v := b.actorChecks(sess, actor); !v.Valid {
		return v
	}
	if !b.graph.HasNode(from) || !b.graph.HasNode(to) {
		return deny("unknown node")
	}
	stone := sess.StoneOf(actor)
	if sess.Occupant[from] != stone {
		return deny("node %s does not hold your stone", from)
	}
	if sess.Occupant[to] != models.Empty {
		return deny("node %s is not empty", to)
	}
	return rule(sess, stone, from, to)
}

func (b *base) move(sess *models.GameSession, actor, from, to string) *models.GameSession {
	next := sess.Clone()
	stone := next.StoneOf(actor)
	next.Occupant[from] = models.Empty
	next.Occupant[to] = stone
	next.CurrentTurn = next.OpponentOf(actor)
	next.MoveCount++
	return next
}

// edgeRule allows a step along any edge of the board.
func (b *base) edgeRule(_ *models.GameSession, _ models.Stone, from, to string) Verdict {
	if !b.graph.Adjacent(from, to) {
		return deny("%s and %s are not connected", from, to)
	}
	return ok
}

// hasAnyMove reports whether any stone of colour s can make a legal step.
func (b *base) hasAnyMove(sess *models.GameSession, s models.Stone, rule transitionFunc) bool {
	for _, from := range b.graph.NodeIDs() {
		if sess.Occupant[from] != s {
			continue
		}
		for _, to := range b.graph.Neighbors(from) {
			if sess.Occupant[to] != models.Empty {
				continue
			}
			if rule(sess, s, from, to).Valid {
				return true
			}
		}
	}
	return false
}

// opponentBlocked is the shared no-moves win: the opponent has stones on the
// board and none of them can move.
func (b *base) opponentBlocked(sess *models.GameSession, actor models.Stone, rule transitionFunc) bool {
	if sess.Phase != models.PhaseMovement {
		return false
	}
	opp := actor.Opponent()
	if sess.CountStones(opp) == 0 {
		return false
	}
	return !b.hasAnyMove(sess, opp, rule)
}

func placed(sess *models.GameSession, s models.Stone) int {
	if s == models.Black {
		return sess.BlackCount
	}
	return sess.WhiteCount
}

// movesBy counts movement-phase moves made by colour s. Black always moves first.
func movesBy(sess *models.GameSession, s models.Stone) int {
	if s == models.Black {
		return (sess.MoveCount + 1) / 2
	}
	return sess.MoveCount / 2
}
