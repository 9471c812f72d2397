package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/gonu/clock"
	"github.com/wfunc/gonu/models"
	"github.com/wfunc/gonu/persistence"
	"github.com/wfunc/gonu/state"
)

// MockArchive keeps every saved record.
type MockArchive struct {
	records []*models.MatchRecord
}

func (m *MockArchive) SaveMatch(ctx context.Context, rec *models.MatchRecord) error {
	m.records = append(m.records, rec)
	return nil
}

func (m *MockArchive) PlayerStats(ctx context.Context, userID string) (*models.PlayerStats, error) {
	return &models.PlayerStats{UserID: userID}, nil
}

func finished(id, winner string, startedAt, endedAt time.Time) *models.GameSession {
	return &models.GameSession{
		ID:         id,
		MapID:      "four-line",
		Status:     models.StatusFinished,
		Player1ID:  "alice",
		Player2ID:  "bob",
		WinnerID:   winner,
		BlackCount: 4,
		WhiteCount: 4,
		MoveCount:  3,
		StartedAt:  &startedAt,
		UpdatedAt:  endedAt,
	}
}

func TestMatchService_RecordFinished(t *testing.T) {
	ctx := context.Background()
	archive := persistence.NewMemoryArchive()
	svc := NewMatchService(archive)

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, svc.RecordFinished(ctx, finished("g1", "alice", start, start.Add(90*time.Second))))
	require.NoError(t, svc.RecordFinished(ctx, finished("g2", "bob", start, start.Add(time.Minute))))

	stats, err := svc.PlayerStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.PlayerStats{UserID: "alice", TotalGames: 2, Wins: 1, Losses: 1}, *stats)
}

func TestMatchService_RejectsUnfinished(t *testing.T) {
	svc := NewMatchService(persistence.NewMemoryArchive())

	sess := finished("g1", "", time.Now(), time.Now())
	assert.ErrorIs(t, svc.RecordFinished(context.Background(), sess), ErrNotFinished)

	sess.WinnerID = "alice"
	sess.Status = models.StatusPlaying
	assert.ErrorIs(t, svc.RecordFinished(context.Background(), sess), ErrNotFinished)

	_, err := svc.PlayerStats(context.Background(), "")
	assert.Error(t, err)
}

func TestMatchService_MovesExcludeStartingStones(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		mapID        string
		black, white int
		moves        int
		want         int
	}{
		{"four-line", 4, 4, 3, 11},
		{"lone-well", 2, 2, 5, 5},
		{"pumpkin", 3, 3, 1, 1},
	}
	for _, tc := range cases {
		archive := &MockArchive{}
		sess := finished("g-"+tc.mapID, "alice", start, start.Add(time.Minute))
		sess.MapID = tc.mapID
		sess.BlackCount, sess.WhiteCount, sess.MoveCount = tc.black, tc.white, tc.moves

		require.NoError(t, NewMatchService(archive).RecordFinished(context.Background(), sess))
		require.Len(t, archive.records, 1)
		assert.Equal(t, tc.want, archive.records[0].Moves, tc.mapID)
	}
}

func TestMatchService_PumpkinMatchRecordsPlayedMoves(t *testing.T) {
	rb, err := state.NewRulebook("pumpkin", clock.DefaultSettings())
	require.NoError(t, err)
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	sess := rb.NewSession("g1", "", "alice", t0)
	sess, err = rb.Join(sess, "bob", t0)
	require.NoError(t, err)
	sess, err = rb.ToggleReady(sess, "alice", t0)
	require.NoError(t, err)
	sess, err = rb.ToggleReady(sess, "bob", t0)
	require.NoError(t, err)
	sess, err = rb.StartMatch(sess, t0.Add(4*time.Second))
	require.NoError(t, err)
	sess, err = rb.ApplyMove(sess, "alice", "n0,0", "n0,1", t0.Add(5*time.Second))
	require.NoError(t, err)
	sess, err = rb.Surrender(sess, "bob", t0.Add(6*time.Second))
	require.NoError(t, err)

	archive := &MockArchive{}
	require.NoError(t, NewMatchService(archive).RecordFinished(context.Background(), sess))
	require.Len(t, archive.records, 1)
	assert.Equal(t, 1, archive.records[0].Moves)
	assert.Equal(t, "alice", archive.records[0].WinnerID)
}
