// Command livebracketd runs the live-bracket WebSocket server: loads
// config, wires store/auth/registry/metrics/logging, and serves until
// a termination signal arrives.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tourneyforge/livebracket/internal/auth"
	"github.com/tourneyforge/livebracket/internal/config"
	"github.com/tourneyforge/livebracket/internal/live"
	"github.com/tourneyforge/livebracket/internal/logging"
	"github.com/tourneyforge/livebracket/internal/metrics"
	"github.com/tourneyforge/livebracket/internal/server"
	"github.com/tourneyforge/livebracket/internal/session"
	"github.com/tourneyforge/livebracket/internal/store"
	boltstore "github.com/tourneyforge/livebracket/internal/store/bolt"
	memorystore "github.com/tourneyforge/livebracket/internal/store/memory"
	sqlitestore "github.com/tourneyforge/livebracket/internal/store/sqlite"
	"github.com/tourneyforge/livebracket/internal/system"
)

func main() {
	var configPath string
	root := &cobra.Command{
		Use:   "livebracketd",
		Short: "Live tournament bracket WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", "config.yaml", "path to the YAML configuration file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg.Development)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	raiseFileDescriptorLimit(log)

	st, backendName, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if closer, ok := st.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	users, err := loadUsers(cfg.UserTablePath)
	if err != nil {
		return fmt.Errorf("load user table: %w", err)
	}
	a := auth.New([]byte(cfg.JWT.SigningKey), auth.Algorithm(cfg.JWT.Algorithm), cfg.JWT.ClockSkew, users, log)

	rec := metrics.New(prometheus.DefaultRegisterer)

	liveCfg := live.Config{
		SubscriberQueueCap:   cfg.Live.SubscriberQueueCap,
		MaxSubscribers:       cfg.Live.MaxSubscribersPerBracket,
		StoreRetryMaxElapsed: cfg.Live.StoreRetryMaxElapsed,
	}
	registry := live.NewRegistry(system.Default(), st, backendName, liveCfg, log, rec)

	sessionCfg := session.Config{
		FrameRateLimit: cfg.Session.FrameRateLimit,
		FrameRateBurst: cfg.Session.FrameRateBurst,
	}
	srv := server.New(registry, st, a, sessionCfg, cfg.Cors.AllowedOrigins, log)

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-sigCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(ctx)
}

// openStore constructs the configured persistence backend (spec
// §4.8 store.backend).
func openStore(cfg *config.Config) (store.Store, string, error) {
	switch cfg.Store.Backend {
	case "memory":
		return memorystore.New(), "memory", nil
	case "bolt":
		st, err := boltstore.Open(cfg.Store.BoltPath)
		if err != nil {
			return nil, "", err
		}
		return st, "bolt", nil
	case "sqlite":
		st, err := sqlitestore.Open(cfg.Store.SQLiteDSN)
		if err != nil {
			return nil, "", err
		}
		return st, "sqlite", nil
	default:
		return nil, "", fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func loadUsers(path string) ([]auth.UserRecord, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var users []auth.UserRecord
	if err := yaml.Unmarshal(raw, &users); err != nil {
		return nil, err
	}
	return users, nil
}
