// state/interfaces.go
package state

import (
	"time"

	"github.com/wfunc/gonu/models"
)

// Player is the acting participant. The user id comes from the connection's
// authenticated identity, never from process-wide state.
type Player interface {
	GetUserID() string
}

// RoomContext defines the interface that a Room must implement to be managed by the state machine.
// This breaks the import cycle between room and state.
type RoomContext interface {
	GetID() string
	// Session returns the room's authoritative copy. Callers must not modify it.
	Session() *models.GameSession
	Rulebook() *Rulebook
	Now() time.Time
	// Commit writes next to the store and adopts it as the room's copy.
	Commit(next *models.GameSession) error
	// Destroy deletes the record and closes the room.
	Destroy() error
}

// 玩家操作类型
const (
	ActionJoin      = "join"
	ActionReady     = "ready"
	ActionPlace     = "place"
	ActionMove      = "move"
	ActionSurrender = "surrender"
	ActionLeave     = "leave"
)

// Action is one client request against the session.
type Action struct {
	Type string `json:"type"`
	Node string `json:"node,omitempty"`
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}
