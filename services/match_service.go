// services/match_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/wfunc/gonu/board"
	"github.com/wfunc/gonu/models"
	"github.com/wfunc/gonu/persistence"
)

var ErrNotFinished = errors.New("match has not finished")

type MatchService struct {
	archive persistence.MatchArchive
}

func NewMatchService(archive persistence.MatchArchive) *MatchService {
	return &MatchService{archive: archive}
}

// RecordFinished 归档一局已结束的对局
func (s *MatchService) RecordFinished(ctx context.Context, sess *models.GameSession) error {
	if sess.Status != models.StatusFinished || sess.WinnerID == "" {
		return fmt.Errorf("record %s: %w", sess.ID, ErrNotFinished)
	}

	rec := &models.MatchRecord{
		SessionID: sess.ID,
		MapID:     sess.MapID,
		WinnerID:  sess.WinnerID,
		LoserID:   sess.OpponentOf(sess.WinnerID),
		Moves:     movesOf(sess),
		EndedAt:   sess.UpdatedAt,
	}
	if sess.StartedAt != nil {
		rec.Duration = sess.UpdatedAt.Sub(*sess.StartedAt)
	}

	if err := s.archive.SaveMatch(ctx, rec); err != nil {
		return fmt.Errorf("record %s: %w", sess.ID, err)
	}
	return nil
}

// movesOf counts the placements and moves made during the match. Stones that
// start on the board are not moves.
func movesOf(sess *models.GameSession) int {
	placed := sess.BlackCount + sess.WhiteCount
	if g, err := board.Get(sess.MapID); err == nil {
		placed -= len(g.Initial.Black) + len(g.Initial.White)
	}
	return placed + sess.MoveCount
}

// PlayerStats 获取玩家战绩
func (s *MatchService) PlayerStats(ctx context.Context, userID string) (*models.PlayerStats, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	return s.archive.PlayerStats(ctx, userID)
}
