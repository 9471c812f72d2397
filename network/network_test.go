package network

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/gonu/models"
)

func TestPacket_RoundTrip(t *testing.T) {
	raw, err := EncodePacket(MsgTypeMove, []byte(`{"from":"n0,0","to":"n0,1"}`))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xcb, 0x00, 0x1b}, raw[:4])

	p, err := DecodePacket(raw)
	require.NoError(t, err)
	assert.Equal(t, uint16(MsgTypeMove), p.MsgID)
	assert.Equal(t, uint16(27), p.Length)

	var req MoveRequest
	require.NoError(t, Unmarshal(p.Data, &req))
	assert.Equal(t, MoveRequest{From: "n0,0", To: "n0,1"}, req)
}

func TestPacket_Malformed(t *testing.T) {
	_, err := DecodePacket([]byte{0x00, 0x01})
	assert.ErrorIs(t, err, ErrShortPacket)

	// 声明长度 8，实际只有 2 字节
	_, err = DecodePacket([]byte{0x00, 0x01, 0x00, 0x08, 'h', 'i'})
	assert.ErrorIs(t, err, ErrShortPacket)

	_, err = EncodePacket(MsgTypeGameSync, make([]byte, MaxPayload+1))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	p, err := DecodePacket([]byte{0x00, 0x01, 0x00, 0x00})
	require.NoError(t, err)
	assert.Empty(t, p.Data)
}

func TestGameSync_Golden(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msg := GameSync{
		Session: &models.GameSession{
			ID:              "g1",
			MapID:           "four-line",
			Title:           "friendly",
			Status:          models.StatusPlaying,
			Phase:           models.PhasePlacement,
			Player1ID:       "alice",
			Player2ID:       "bob",
			CurrentTurn:     "bob",
			Occupant:        map[string]models.Stone{"n1,1": models.Empty, "n0,0": models.Black},
			BlackCount:      1,
			Player1TimeLeft: 30,
			Player2TimeLeft: 30,
			Player1Periods:  3,
			Player2Periods:  3,
			ClockAnchor:     &t0,
			StartedAt:       &t0,
			Version:         4,
			CreatedAt:       t0,
			UpdatedAt:       t0,
		},
	}

	data, err := Marshal(msg)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "game_sync", data)
}

func TestWSConnection_SendAndRead(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws := NewWSConnection(conn)
		defer ws.Close()
		p, err := ws.ReadPacket()
		if err != nil {
			return
		}
		// 原样回显
		ws.Send(p.MsgID, p.Data)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	client := NewWSConnection(conn)
	defer client.Close()
	client.SetHeartbeat(time.Second)

	payload, err := Marshal(PlaceRequest{Node: "n2,2"})
	require.NoError(t, err)
	require.NoError(t, client.Send(MsgTypePlace, payload))

	p, err := client.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, uint16(MsgTypePlace), p.MsgID)
	assert.JSONEq(t, `{"node":"n2,2"}`, string(p.Data))
}
