package broadcast

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/gonu/clock"
	"github.com/wfunc/gonu/network"
	"github.com/wfunc/gonu/persistence"
	"github.com/wfunc/gonu/room"
	"github.com/wfunc/gonu/session"
)

// MockConnection counts the packets sent to it.
type MockConnection struct {
	mu      sync.Mutex
	packets []uint16
	fail    bool
}

func (m *MockConnection) Send(msgID uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("broken pipe")
	}
	m.packets = append(m.packets, msgID)
	return nil
}
func (m *MockConnection) Close() error                         { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

func (m *MockConnection) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.packets)
}

func newBroadcaster(t *testing.T) (*RoomBroadcaster, *room.Manager, *session.Manager) {
	t.Helper()
	rooms := room.NewRoomManager(room.ManagerOptions{
		Store:        persistence.NewMemoryStore(),
		Clock:        clock.DefaultSettings(),
		TickInterval: time.Hour,
	})
	sessions := session.NewManager()
	b := NewRoomBroadcaster(rooms, sessions)
	rooms.SetBroadcaster(b)
	t.Cleanup(rooms.Close)
	return b, rooms, sessions
}

func TestBroadcastToRoom(t *testing.T) {
	b, rooms, sessions := newBroadcaster(t)

	r, err := rooms.CreateGame(context.Background(), "alice", "four-line", "")
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}

	inRoom := &MockConnection{}
	broken := &MockConnection{fail: true}
	lobby := &MockConnection{}
	for i, conn := range []*MockConnection{inRoom, broken, lobby} {
		s := session.NewSession(string(rune('a'+i)), "alice", conn)
		sessions.Add(s)
		if conn != lobby {
			r.AddPlayer(s)
		}
	}

	if err := b.BroadcastToRoom(r.ID, network.MsgTypeGameSync, []byte("{}")); err != nil {
		t.Fatalf("BroadcastToRoom: %v", err)
	}
	if inRoom.count() != 1 {
		t.Errorf("Expected 1 packet for the attached connection, got %d", inRoom.count())
	}
	if lobby.count() != 0 {
		t.Errorf("Lobby connection should not receive room traffic, got %d", lobby.count())
	}

	if err := b.BroadcastToRoom("missing", network.MsgTypeGameSync, nil); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}
}

func TestBroadcastToUsersAndAll(t *testing.T) {
	b, _, sessions := newBroadcaster(t)

	aliceTab1, aliceTab2, bobConn := &MockConnection{}, &MockConnection{}, &MockConnection{}
	sessions.Add(session.NewSession("s1", "alice", aliceTab1))
	sessions.Add(session.NewSession("s2", "alice", aliceTab2))
	sessions.Add(session.NewSession("s3", "bob", bobConn))

	b.BroadcastToUsers([]string{"alice"}, network.MsgTypeError, []byte("{}"))
	if aliceTab1.count() != 1 || aliceTab2.count() != 1 || bobConn.count() != 0 {
		t.Errorf("Unexpected delivery: %d %d %d", aliceTab1.count(), aliceTab2.count(), bobConn.count())
	}

	b.BroadcastToAll(network.MsgTypeHeartbeat, nil)
	if aliceTab1.count() != 2 || bobConn.count() != 1 {
		t.Errorf("BroadcastToAll should reach every connection: %d %d", aliceTab1.count(), bobConn.count())
	}
}
