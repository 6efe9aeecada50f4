// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/Shivanand-hulikatti/venue-ticketing/internal/config"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/database"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/events"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/handler"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/holdings"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/inventory"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/ledger"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/metrics"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/principal"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/repository"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/service"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/settlement"
)

var _ service.Store = (*repository.VenueRepository)(nil)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	var (
		addr       string
		backend    string
		issueToken string
		fund       map[string]int64
	)
	pflag.StringVar(&addr, "addr", ":"+cfg.Port, "HTTP listen address")
	pflag.StringVar(&backend, "ledger", cfg.LedgerBackend, "ledger backend: memory, postgres, redis or remote")
	pflag.StringVar(&issueToken, "issue-token", "", "print a bearer token for the given account and exit")
	pflag.StringToInt64Var(&fund, "fund", nil, "deposit into accounts before serving, e.g. --fund buyer=100")
	pflag.Parse()
	cfg.LedgerBackend = backend

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	auth := principal.NewAuthenticator(cfg.JWTSecret, cfg.TokenTTL)
	if issueToken != "" {
		token, err := auth.Issue(principal.ID(issueToken))
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// ── 1. Connect the ledger ────────────────────────────────────────────
	conn, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	defer conn.close()
	l := conn.ledger
	logger.Info("ledger ready", "backend", cfg.LedgerBackend)

	if err := fundAccounts(ctx, l, fund); err != nil {
		return err
	}

	// ── 2. Connect the event broker ──────────────────────────────────────
	var publisher events.Publisher = events.Nop{}
	if cfg.AMQPURL != "" {
		p, err := events.NewAMQPPublisher(cfg.AMQPURL, logger)
		if err != nil {
			return fmt.Errorf("rabbitmq: %w", err)
		}
		defer p.Close()
		publisher = p
		logger.Info("publishing purchase events", "queue", events.PurchaseQueue)
	}

	// ── 3. Wire up layers ────────────────────────────────────────────────
	var store service.Store
	if pg, ok := l.(*ledger.Postgres); ok {
		repo := repository.NewVenueRepository(conn.pool, pg, publisher, logger)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		unsold, err := repo.UnsoldTotal(ctx)
		if err != nil {
			return err
		}
		metrics.SetUnsold(unsold)
		store = repo
	} else {
		if cfg.LedgerBackend != config.LedgerMemory {
			logger.Warn("venues and holdings are kept in memory and lost on restart", "ledger", cfg.LedgerBackend)
		}
		inv := inventory.NewManager()
		engine := settlement.NewEngine(inv, l, holdings.NewRegistry(),
			settlement.WithPublisher(publisher),
			settlement.WithLogger(logger),
		)
		go reconcile(ctx, engine, cfg.ReconcileInterval, logger)
		store = service.NewMemoryStore(inv, engine)
	}
	svc := service.NewVenueService(store, logger)
	balances, _ := l.(ledger.BalanceReader)
	h := handler.NewVenueHandler(svc, balances, logger)

	// ── 4. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler.NewRouter(h, auth, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	logger.Info("shutting down server")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

type ledgerConn struct {
	ledger ledger.Ledger
	pool   *pgxpool.Pool
	close  func()
}

// openLedger constructs the configured ledger and a function releasing
// its connections. The postgres backend also returns its pool so the venue
// store can share transactions with the ledger.
func openLedger(ctx context.Context, cfg config.Config, logger *slog.Logger) (*ledgerConn, error) {
	switch cfg.LedgerBackend {
	case config.LedgerPostgres:
		pool, err := database.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		pg := ledger.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return &ledgerConn{ledger: pg, pool: pool, close: pool.Close}, nil

	case config.LedgerRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return &ledgerConn{ledger: ledger.NewRedis(client), close: func() { _ = client.Close() }}, nil

	case config.LedgerRemote:
		return &ledgerConn{ledger: ledger.NewRemote(ledger.RemoteConfig{
			BaseURL:      cfg.RemoteLedgerURL,
			APIToken:     cfg.RemoteLedgerToken,
			PollInterval: cfg.PollInterval,
			PollAttempts: cfg.PollAttempts,
		}, logger), close: func() {}}, nil

	default:
		return &ledgerConn{ledger: ledger.NewMemory(), close: func() {}}, nil
	}
}

// reconcile periodically resolves purchases whose payment outcome was
// unknown when they were made.
func reconcile(ctx context.Context, engine *settlement.Engine, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := engine.Reconcile(ctx); n > 0 {
				logger.Info("reconciled purchases", "resolved", n, "unsettled", len(engine.Unsettled()))
			}
		}
	}
}

func fundAccounts(ctx context.Context, l ledger.Ledger, deposits map[string]int64) error {
	if len(deposits) == 0 {
		return nil
	}
	f, ok := l.(ledger.Funder)
	if !ok {
		return errors.New("--fund is not supported by this ledger")
	}
	ids := make([]string, 0, len(deposits))
	for id := range deposits {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := f.Fund(ctx, principal.ID(id), deposits[id]); err != nil {
			return fmt.Errorf("fund %s: %w", id, err)
		}
		slog.Info("account funded", "account", id, "amount", deposits[id])
	}
	return nil
}
