package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/wfunc/gonu/board"
	"github.com/wfunc/gonu/config"
	"github.com/wfunc/gonu/logger"
	"github.com/wfunc/gonu/monitor"
	"github.com/wfunc/gonu/persistence"
	"github.com/wfunc/gonu/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "gonu",
		Short: "Gonu game server",
	}
	cmd.PersistentFlags().StringVar(&configDir, "config", ".", "directory holding config.yaml and .env")

	serve := &cobra.Command{
		Use:           "serve",
		Short:         "Run the websocket game server and the admin RPC",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configDir)
		},
	}

	boards := &cobra.Command{
		Use:   "boards",
		Short: "List the built-in boards",
		Run: func(cmd *cobra.Command, args []string) {
			for _, id := range board.IDs() {
				g, err := board.Get(id)
				if err != nil {
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %-16s %s, %d pieces\n", g.ID, g.Name, g.Variant, g.PiecesPerPlayer)
			}
		},
	}

	cmd.AddCommand(serve, boards)
	return cmd
}

func serve(configDir string) error {
	// Load configuration
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// Initialize logger
	logger.Init(cfg.Log.Level, cfg.Log.Development)
	defer logger.Sync()

	store, archive, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Log.Infof("Store %s ready.", cfg.Store.Backend)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	gameServer := server.NewGameServer(cfg, store, archive, monitor.NewMonitor("gonu", reg))

	errCh := make(chan error, 1)
	go func() {
		errCh <- gameServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Log.Infof("Received %s, shutting down.", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return gameServer.Shutdown(ctx)
}

// openStore connects the configured backend. Backends without an archive
// table keep finished matches in memory.
func openStore(cfg config.StoreConfig) (persistence.Store, persistence.MatchArchive, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		store, err := persistence.NewRedisStore(cfg.Redis.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return store, persistence.NewMemoryArchive(), nil
	case config.BackendPostgres:
		pg := cfg.Postgres
		store, err := persistence.NewGormStore(persistence.PostgresDSN(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName))
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return store, store, nil
	case config.BackendSQLite:
		store, err := persistence.OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return store, store, nil
	default:
		return persistence.NewMemoryStore(), persistence.NewMemoryArchive(), nil
	}
}
