package network

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/wfunc/gonu/models"
)

const (
	MsgTypeHeartbeat = 1

	// 大厅
	MsgTypeCreateGame = 101
	MsgTypeJoinGame   = 102
	MsgTypeLeaveGame  = 103
	MsgTypeOpenGame   = 104

	// 对局操作
	MsgTypeReady     = 201
	MsgTypePlace     = 202
	MsgTypeMove      = 203
	MsgTypeSurrender = 204

	// 服务端推送
	MsgTypeGameSync     = 301
	MsgTypeActionResult = 302
	MsgTypeCountdown    = 303
	MsgTypeGameClosed   = 304
	MsgTypeError        = 305
)

const (
	headerSize = 4
	// MaxPayload is the largest payload the 2-byte length field can carry.
	MaxPayload = 1<<16 - 1
)

var (
	ErrShortPacket     = errors.New("packet shorter than its header")
	ErrPayloadTooLarge = errors.New("payload too large")
)

type Packet struct {
	MsgID  uint16
	Data   []byte
	Length uint16
}

// EncodePacket 封包: 2字节消息ID + 2字节数据长度 + 数据
func EncodePacket(msgID uint16, data []byte) ([]byte, error) {
	if len(data) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(data))
	}
	packet := make([]byte, headerSize+len(data))
	binary.BigEndian.PutUint16(packet[0:2], msgID)
	binary.BigEndian.PutUint16(packet[2:4], uint16(len(data)))
	copy(packet[headerSize:], data)
	return packet, nil
}

func DecodePacket(data []byte) (*Packet, error) {
	if len(data) < headerSize {
		return nil, ErrShortPacket
	}

	msgID := binary.BigEndian.Uint16(data[0:2])
	length := binary.BigEndian.Uint16(data[2:4])

	if len(data) < headerSize+int(length) {
		return nil, ErrShortPacket
	}

	return &Packet{
		MsgID:  msgID,
		Length: length,
		Data:   data[headerSize : headerSize+int(length)],
	}, nil
}

// Marshal encodes a payload the way every message body is encoded.
func Marshal(v any) ([]byte, error) {
	return sonic.ConfigStd.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return sonic.ConfigStd.Unmarshal(data, v)
}

// --- client -> server ---

type CreateGameRequest struct {
	MapID string `json:"mapId"`
	Title string `json:"title"`
}

// GameRequest names the game for join, open and leave.
type GameRequest struct {
	GameID string `json:"gameId"`
}

type PlaceRequest struct {
	Node string `json:"node"`
}

type MoveRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// --- server -> client ---

// GameSync carries the full record after every accepted change.
type GameSync struct {
	Session *models.GameSession `json:"session"`
	// Countdown is the display value of a running start countdown, 0 when none.
	Countdown int `json:"countdown"`
}

type ActionResult struct {
	Action string `json:"action"`
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

type Countdown struct {
	GameID  string `json:"gameId"`
	Seconds int    `json:"seconds"`
}

type GameClosed struct {
	GameID string `json:"gameId"`
	Reason string `json:"reason"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}
