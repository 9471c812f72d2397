// persistence/interface.go
package persistence

import (
	"context"
	"errors"

	"github.com/wfunc/gonu/models"
)

// Store is the shared session record store. Writes are compare-and-swap on the
// record version so two writers racing on the same record cannot both win.
type Store interface {
	// Create inserts a new record at version 1.
	Create(ctx context.Context, sess *models.GameSession) error
	Read(ctx context.Context, id string) (*models.GameSession, error)
	// Write replaces the record if its stored version equals expectedVersion.
	// On success sess.Version is the new stored version.
	Write(ctx context.Context, sess *models.GameSession, expectedVersion int64) error
	Delete(ctx context.Context, id string) error
	// Subscribe delivers every committed change of id until ctx is done.
	Subscribe(ctx context.Context, id string) (<-chan Change, error)
	Close() error
}

// MatchArchive keeps finished matches.
type MatchArchive interface {
	SaveMatch(ctx context.Context, rec *models.MatchRecord) error
	PlayerStats(ctx context.Context, userID string) (*models.PlayerStats, error)
}

// Change is one change-feed notification. Snapshots carry the full record.
type Change struct {
	ID      string              `json:"id"`
	Session *models.GameSession `json:"session,omitempty"`
	Deleted bool                `json:"deleted,omitempty"`
	// Stale means notifications may have been lost; subscribers should re-read.
	Stale bool `json:"stale,omitempty"`
}

// 错误定义
var (
	ErrNotFound = errors.New("record not found")
	ErrExists   = errors.New("record already exists")
	ErrConflict = errors.New("record was modified concurrently")
)
