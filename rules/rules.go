// Package rules decides move legality and wins for each Gonu variant.
//
// Engines are stateless: every method is a pure function of the session record,
// the acting player and the move. Anything that must survive between moves, such
// as the opening-move counter, lives on models.GameSession.
package rules

import (
	"errors"
	"fmt"

	"github.com/wfunc/gonu/board"
	"github.com/wfunc/gonu/models"
)

// ErrUnsupportedVariant is returned when a session names a board with no engine.
var ErrUnsupportedVariant = errors.New("unsupported variant")

// Variant identifies a rule set.
type Variant int

const (
	FourLine Variant = iota + 1
	LoneWell
	Pumpkin
)

func (v Variant) String() string {
	switch v {
	case FourLine:
		return "fourline"
	case LoneWell:
		return "lonewell"
	case Pumpkin:
		return "pumpkin"
	}
	return fmt.Sprintf("variant(%d)", int(v))
}

// ParseVariant maps a board's variant name to its enum value.
func ParseVariant(name string) (Variant, error) {
	switch name {
	case "fourline":
		return FourLine, nil
	case "lonewell":
		return LoneWell, nil
	case "pumpkin":
		return Pumpkin, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedVariant, name)
}

// Rejection is a failed precondition. It never carries a state change.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string { return r.Reason }

// Reject builds a rejection error.
func Reject(format string, args ...any) error {
	return &Rejection{Reason: fmt.Sprintf(format, args...)}
}

// IsRejection reports whether err is (or wraps) a validation rejection.
func IsRejection(err error) bool {
	var r *Rejection
	return errors.As(err, &r)
}

// Verdict is the result of a legality check.
type Verdict struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

var ok = Verdict{Valid: true}

func deny(format string, args ...any) Verdict {
	return Verdict{Reason: fmt.Sprintf(format, args...)}
}

// Err converts an invalid verdict into a *Rejection.
func (v Verdict) Err() error {
	if v.Valid {
		return nil
	}
	return &Rejection{Reason: v.Reason}
}

// Engine is the rule set of one variant bound to its board.
type Engine interface {
	Variant() Variant
	Board() *board.Graph
	// Setup writes the creation-time occupant, phase and counts into sess.
	Setup(sess *models.GameSession)
	CanPlace(sess *models.GameSession, actor, node string) Verdict
	Place(sess *models.GameSession, actor, node string) *models.GameSession
	CanMove(sess *models.GameSession, actor, from, to string) Verdict
	Move(sess *models.GameSession, actor, from, to string) *models.GameSession
	CheckWin(sess *models.GameSession, actor models.Stone) bool
	// HasAnyMove reports whether colour s has at least one legal step.
	HasAnyMove(sess *models.GameSession, s models.Stone) bool
}

var registry = map[Variant]func(*board.Graph) Engine{
	FourLine: func(g *board.Graph) Engine { return &fourLine{base{graph: g}} },
	LoneWell: func(g *board.Graph) Engine { return &loneWell{base{graph: g}} },
	Pumpkin:  func(g *board.Graph) Engine { return &pumpkin{base{graph: g}} },
}

// New binds the engine of the graph's variant to the graph.
func New(g *board.Graph) (Engine, error) {
	v, err := ParseVariant(g.Variant)
	if err != nil {
		return nil, err
	}
	build, found := registry[v]
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVariant, v)
	}
	return build(g), nil
}

// Lookup returns the engine for a built-in board id.
func Lookup(mapID string) (Engine, error) {
	g, err := board.Get(mapID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedVariant, err)
	}
	return New(g)
}
