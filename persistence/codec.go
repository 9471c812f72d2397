package persistence

import (
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/wfunc/gonu/models"
)

var codec = sonic.ConfigStd

func encodeSession(sess *models.GameSession) ([]byte, error) {
	data, err := codec.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	return data, nil
}

func decodeSession(data []byte) (*models.GameSession, error) {
	var sess models.GameSession
	if err := codec.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if sess.Occupant == nil {
		sess.Occupant = make(map[string]models.Stone)
	}
	return &sess, nil
}

func encodeChange(c Change) ([]byte, error) {
	return codec.Marshal(c)
}

func decodeChange(data []byte) (Change, error) {
	var c Change
	if err := codec.Unmarshal(data, &c); err != nil {
		return Change{}, fmt.Errorf("decode change: %w", err)
	}
	return c, nil
}
