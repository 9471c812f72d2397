package room

import (
	"context"

	"github.com/wfunc/gonu/models"
)

// Broadcaster defines the interface for broadcasting messages to a room.
// This is defined here to break the import cycle between room and broadcast.
type Broadcaster interface {
	BroadcastToRoom(roomID string, msgID uint16, data []byte) error
}

// MatchRecorder archives a match the moment it finishes.
type MatchRecorder interface {
	RecordFinished(ctx context.Context, sess *models.GameSession) error
}
