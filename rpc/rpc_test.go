package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/wfunc/gonu/models"
	"github.com/wfunc/gonu/persistence"
	"github.com/wfunc/gonu/services"
)

func newAdmin(t *testing.T) (*AdminClient, persistence.Store, persistence.MatchArchive) {
	t.Helper()
	store := persistence.NewMemoryStore()
	archive := persistence.NewMemoryArchive()

	lis := bufconn.Listen(1 << 20)
	srv := NewServer(lis, NewAdminService(store, services.NewMatchService(archive)))
	go srv.Start()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewAdminClient(conn), store, archive
}

func TestAdmin_GetSession(t *testing.T) {
	client, store, _ := newAdmin(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, store.Create(ctx, &models.GameSession{
		ID:        "g1",
		MapID:     "lone-well",
		Status:    models.StatusWaiting,
		Player1ID: "alice",
		Occupant:  map[string]models.Stone{"n0,0": models.Black},
	}))

	sess, err := client.GetSession(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "alice", sess.Player1ID)
	assert.Equal(t, int64(1), sess.Version)
	assert.Equal(t, models.Black, sess.Occupant["n0,0"])

	_, err = client.GetSession(ctx, "missing")
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.GetSession(ctx, "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestAdmin_GetPlayerStats(t *testing.T) {
	client, _, archive := newAdmin(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, archive.SaveMatch(ctx, &models.MatchRecord{SessionID: "g1", WinnerID: "alice", LoserID: "bob"}))

	stats, err := client.GetPlayerStats(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.PlayerStats{UserID: "bob", TotalGames: 1, Losses: 1}, *stats)

	_, err = client.GetPlayerStats(ctx, "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
