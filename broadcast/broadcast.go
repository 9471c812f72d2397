// broadcast/broadcast.go
package broadcast

import (
	"errors"

	"github.com/wfunc/gonu/logger"
	"github.com/wfunc/gonu/room"
	"github.com/wfunc/gonu/session"
)

var (
	ErrRoomNotFound = errors.New("room not found")
)

// 广播接口
type Broadcaster interface {
	BroadcastToRoom(roomID string, msgID uint16, data []byte) error
	BroadcastToAll(msgID uint16, data []byte) error
	BroadcastToUsers(userIDs []string, msgID uint16, data []byte) error
}

// 基于房间的广播器
type RoomBroadcaster struct {
	roomManager    *room.Manager
	sessionManager *session.Manager
}

func NewRoomBroadcaster(roomManager *room.Manager, sessionManager *session.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{
		roomManager:    roomManager,
		sessionManager: sessionManager,
	}
}

// BroadcastToRoom sends to every connection attached to the room. A failed
// send only affects that connection; its read loop notices the dead socket.
func (b *RoomBroadcaster) BroadcastToRoom(roomID string, msgID uint16, data []byte) error {
	r, exists := b.roomManager.GetRoom(roomID)
	if !exists {
		return ErrRoomNotFound
	}
	b.send(r.GetSessions(), msgID, data)
	return nil
}

func (b *RoomBroadcaster) BroadcastToAll(msgID uint16, data []byte) error {
	b.send(b.sessionManager.All(), msgID, data)
	return nil
}

func (b *RoomBroadcaster) BroadcastToUsers(userIDs []string, msgID uint16, data []byte) error {
	for _, userID := range userIDs {
		b.send(b.sessionManager.GetByUserID(userID), msgID, data)
	}
	return nil
}

func (b *RoomBroadcaster) send(sessions []*session.Session, msgID uint16, data []byte) {
	for _, s := range sessions {
		if err := s.Send(msgID, data); err != nil {
			logger.Log.Debugf("send %d to session %s failed: %v", msgID, s.GetID(), err)
		}
	}
}
