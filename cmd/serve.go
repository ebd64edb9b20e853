package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/agentworker/internal/daemonconfig"
	"github.com/nextlevelbuilder/agentworker/internal/daemonhttp"
	"github.com/nextlevelbuilder/agentworker/internal/domain"
	"github.com/nextlevelbuilder/agentworker/internal/registry"
	"github.com/nextlevelbuilder/agentworker/internal/statestore"
	"github.com/nextlevelbuilder/agentworker/internal/statestore/pg"
	"github.com/nextlevelbuilder/agentworker/internal/worker"
)

var flagVerbose bool

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
	cmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

func runServe() error {
	logLevel := slog.LevelInfo
	if flagVerbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	cfg, err := daemonconfig.Resolve(flagHost, flagPort, flagHome)
	if err != nil {
		return fmt.Errorf("resolve config: %w", err)
	}

	reg, err := registry.New(cfg.Home)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}

	if rec, err := reg.ReadDaemonRecord(); err == nil && rec != nil {
		if syscall.Kill(rec.PID, 0) == nil {
			return fmt.Errorf("a daemon is already running (pid %d); run `agentworker stop` first", rec.PID)
		}
	}

	var store statestore.Store
	if cfg.PostgresDSN != "" {
		pgStore, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres state store: %w", err)
		}
		defer pgStore.Close()
		store = pgStore
	} else {
		store = statestore.NewMemory()
	}

	providerFactory := func(domain.AgentConfig) (worker.Provider, error) {
		return &worker.EchoProvider{}, nil
	}

	app := daemonhttp.New(cfg, reg, store, providerFactory)

	if err := reg.WriteDaemonRecord(registry.DaemonRecord{
		PID:       os.Getpid(),
		Host:      cfg.Host,
		Port:      cfg.Port,
		StartedAt: time.Now(),
		Token:     cfg.Token,
	}); err != nil {
		return fmt.Errorf("write daemon record: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("daemon.shutdown_signal", "signal", sig)
		cancel()
	}()

	slog.Info("daemon.starting", "host", cfg.Host, "port", cfg.Port, "home", cfg.Home)
	if err := app.Start(ctx, cfg.RunRPM, cfg.ServeRPM); err != nil {
		return fmt.Errorf("daemon: %w", err)
	}
	return nil
}
