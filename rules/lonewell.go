package rules

import (
	"github.com/wfunc/gonu/models"
)

// loneWell is 우물고누: two stones each on a five-point board. Stones step along
// lines; the board's forbidden moves restrict a colour's opening move.
type loneWell struct{ base }

func (e *loneWell) Variant() Variant { return LoneWell }

func (e *loneWell) CanPlace(sess *models.GameSession, actor, node string) Verdict {
	return e.canPlace(sess, actor, node)
}

func (e *loneWell) Place(sess *models.GameSession, _, _ string) *models.GameSession {
	return sess.Clone()
}

func (e *loneWell) CanMove(sess *models.GameSession, actor, from, to string) Verdict {
	return e.canMove(sess, actor, from, to, e.step)
}

func (e *loneWell) Move(sess *models.GameSession, actor, from, to string) *models.GameSession {
	return e.move(sess, actor, from, to)
}

func (e *loneWell) HasAnyMove(sess *models.GameSession, s models.Stone) bool {
	return e.hasAnyMove(sess, s, e.step)
}

func (e *loneWell) CheckWin(sess *models.GameSession, actor models.Stone) bool {
	return e.opponentBlocked(sess, actor, e.step)
}

func (e *loneWell) step(sess *models.GameSession, s models.Stone, from, to string) Verdict {
	if v := e.edgeRule(sess, s, from, to); !v.Valid {
		return v
	}
	if movesBy(sess, s) > 0 {
		return ok
	}
	for _, f := range e.graph.ForbiddenMoves {
		if f.Stone() == s && f.From == from && f.To == to {
			reason := f.Description
			if reason == "" {
				reason = "this opening move is not allowed"
			}
			return deny("%s", reason)
		}
	}
	return ok
}
