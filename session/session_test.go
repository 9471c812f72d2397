package session

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/gonu/network"
)

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct {
	mu   sync.Mutex
	sent []*network.Packet
}

func (m *MockConnection) Send(msgID uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, &network.Packet{MsgID: msgID, Data: data, Length: uint16(len(data))})
	return nil
}
func (m *MockConnection) Close() error                         { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

func TestNewManager(t *testing.T) {
	manager := NewManager()
	if manager == nil {
		t.Fatal("NewManager should not return nil")
	}
	if manager.sessions == nil {
		t.Fatal("NewManager should initialize the sessions map")
	}
}

func TestManager_Add_Get_Remove(t *testing.T) {
	manager := NewManager()
	sessionID := "test_session_1"
	sess := NewSession(sessionID, "alice", &MockConnection{})

	manager.Add(sess)
	if manager.Count() != 1 {
		t.Fatalf("Expected session count to be 1, got %d", manager.Count())
	}

	retrievedSess, exists := manager.Get(sessionID)
	if !exists {
		t.Fatal("Get should find the added session")
	}
	if retrievedSess != sess {
		t.Fatal("Get should return the same session instance")
	}

	manager.Remove(sessionID)
	if manager.Count() != 0 {
		t.Fatalf("Expected session count to be 0 after removal, got %d", manager.Count())
	}

	_, exists = manager.Get(sessionID)
	if exists {
		t.Fatal("Get should not find the removed session")
	}
}

func TestManager_GetByUserID(t *testing.T) {
	manager := NewManager()

	manager.Add(NewSession("session1", "alice", &MockConnection{}))
	manager.Add(NewSession("session2", "bob", &MockConnection{}))
	manager.Add(NewSession("session3", "alice", &MockConnection{}))

	if got := len(manager.GetByUserID("alice")); got != 2 {
		t.Errorf("Expected 2 sessions for alice, got %d", got)
	}
	if got := len(manager.GetByUserID("bob")); got != 1 {
		t.Errorf("Expected 1 session for bob, got %d", got)
	}
	if got := len(manager.GetByUserID("carol")); got != 0 {
		t.Errorf("Expected 0 sessions for carol, got %d", got)
	}
	if got := len(manager.All()); got != 3 {
		t.Errorf("Expected 3 sessions in total, got %d", got)
	}
}

func TestSession_GameIDAndPlayer(t *testing.T) {
	sess := NewSession("s1", "alice", &MockConnection{})
	if sess.GetUserID() != "alice" {
		t.Errorf("Expected user alice, got %q", sess.GetUserID())
	}
	if sess.GameID() != "" {
		t.Errorf("New session should be in the lobby, got game %q", sess.GameID())
	}
	sess.SetGameID("g1")
	if sess.GameID() != "g1" {
		t.Errorf("Expected game g1, got %q", sess.GameID())
	}
}

func TestSession_SendMessage(t *testing.T) {
	conn := &MockConnection{}
	sess := NewSession("s1", "alice", conn)
	before := sess.LastActive()
	time.Sleep(time.Millisecond)

	if err := sess.SendMessage(network.MsgTypeError, network.ErrorMessage{Message: "boom"}); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if len(conn.sent) != 1 {
		t.Fatalf("Expected 1 packet, got %d", len(conn.sent))
	}
	if conn.sent[0].MsgID != network.MsgTypeError {
		t.Errorf("Expected msg id %d, got %d", network.MsgTypeError, conn.sent[0].MsgID)
	}
	if string(conn.sent[0].Data) != `{"message":"boom"}` {
		t.Errorf("Unexpected payload %s", conn.sent[0].Data)
	}
	if !sess.LastActive().After(before) {
		t.Error("Send should refresh LastActive")
	}
}
