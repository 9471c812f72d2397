package rules

import (
	"github.com/wfunc/gonu/models"
)

// fourLine is 사방고누: four stones each are placed on a 3x3 grid, then moved
// one king step at a time. Three in a row wins.
type fourLine struct{ base }

func (e *fourLine) Variant() Variant { return FourLine }

func (e *fourLine) CanPlace(sess *models.GameSession, actor, node string) Verdict {
	return e.canPlace(sess, actor, node)
}

func (e *fourLine) Place(sess *models.GameSession, actor, node string) *models.GameSession {
	return e.place(sess, actor, node)
}

func (e *fourLine) CanMove(sess *models.GameSession, actor, from, to string) Verdict {
	return e.canMove(sess, actor, from, to, e.kingStep)
}

func (e *fourLine) Move(sess *models.GameSession, actor, from, to string) *models.GameSession {
	return e.move(sess, actor, from, to)
}

func (e *fourLine) HasAnyMove(sess *models.GameSession, s models.Stone) bool {
	return e.hasAnyMove(sess, s, e.kingStep)
}

func (e *fourLine) CheckWin(sess *models.GameSession, actor models.Stone) bool {
	for _, line := range e.lines() {
		full := true
		for _, id := range line {
			if sess.Occupant[id] != actor {
				full = false
				break
			}
		}
		if full {
			return true
		}
	}
	return e.opponentBlocked(sess, actor, e.kingStep)
}

// kingStep allows a move to any of the eight surrounding grid points.
func (e *fourLine) kingStep(_ *models.GameSession, _ models.Stone, from, to string) Verdict {
	a, _ := e.graph.Node(from)
	b, _ := e.graph.Node(to)
	dx, dy := abs(a.X-b.X), abs(a.Y-b.Y)
	if dx > 1 || dy > 1 || dx+dy == 0 {
		return deny("%s is not next to %s", to, from)
	}
	return ok
}

// lines returns the rows, columns and both diagonals of the grid.
func (e *fourLine) lines() [][]string {
	at := make(map[[2]int]string, len(e.graph.Nodes))
	size := 0
	for _, n := range e.graph.Nodes {
		at[[2]int{n.X, n.Y}] = n.ID
		size = max(size, n.X+1, n.Y+1)
	}

	var out [][]string
	collect := func(cell func(i int) [2]int) {
		line := make([]string, 0, size)
		for i := 0; i < size; i++ {
			id, found := at[cell(i)]
			if !found {
				return
			}
			line = append(line, id)
		}
		out = append(out, line)
	}
	for k := 0; k < size; k++ {
		collect(func(i int) [2]int { return [2]int{i, k} })
		collect(func(i int) [2]int { return [2]int{k, i} })
	}
	collect(func(i int) [2]int { return [2]int{i, i} })
	collect(func(i int) [2]int { return [2]int{size - 1 - i, i} })
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
