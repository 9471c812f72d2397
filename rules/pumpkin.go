package rules

import (
	"github.com/wfunc/gonu/models"
)

// pumpkin is 호박고누: three stones each start on their own line. A stone that
// leaves its line may not return, and no stone may enter the opponent's line.
type pumpkin struct{ base }

func (e *pumpkin) Variant() Variant { return Pumpkin }

func (e *pumpkin) CanPlace(sess *models.GameSession, actor, node string) Verdict {
	return e.canPlace(sess, actor, node)
}

func (e *pumpkin) Place(sess *models.GameSession, _, _ string) *models.GameSession {
	return sess.Clone()
}

func (e *pumpkin) CanMove(sess *models.GameSession, actor, from, to string) Verdict {
	return e.canMove(sess, actor, from, to, e.step)
}

func (e *pumpkin) Move(sess *models.GameSession, actor, from, to string) *models.GameSession {
	return e.move(sess, actor, from, to)
}

func (e *pumpkin) HasAnyMove(sess *models.GameSession, s models.Stone) bool {
	return e.hasAnyMove(sess, s, e.step)
}

func (e *pumpkin) CheckWin(sess *models.GameSession, actor models.Stone) bool {
	return e.opponentBlocked(sess, actor, e.step)
}

func (e *pumpkin) step(sess *models.GameSession, s models.Stone, from, to string) Verdict {
	if v := e.edgeRule(sess, s, from, to); !v.Valid {
		return v
	}

	fromHome := e.graph.InInitialLine(s, from)
	toHome := e.graph.InInitialLine(s, to)
	if !fromHome && toHome {
		return deny("a stone that left its starting line cannot return to it")
	}
	// Inside the starting line stones only move toward the centre.
	if fromHome && toHome && from == e.graph.LineCenter(s) {
		return deny("inside the starting line a stone may only move toward the centre")
	}
	if e.graph.InInitialLine(s.Opponent(), to) {
		return deny("stones cannot enter the opponent's starting line")
	}
	return ok
}
