// Package app wires the proof pipeline together and manages its lifecycle.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	"github.com/markaproof/marka/internal/app/services/proofs"
	"github.com/markaproof/marka/internal/app/storage"
	"github.com/markaproof/marka/internal/app/storage/memory"
	"github.com/markaproof/marka/internal/app/storage/postgres"
	"github.com/markaproof/marka/internal/app/httpapi"
	"github.com/markaproof/marka/internal/config"
	"github.com/markaproof/marka/internal/httpserver"
	"github.com/markaproof/marka/internal/ton"
	"github.com/markaproof/marka/pkg/logger"
)

// Application holds the constructed dependencies with an explicit
// lifecycle: build at process start, Run, then Shutdown.
type Application struct {
	cfg    *config.Config
	log    *logger.Logger
	server *httpserver.Server
	tasks  *proofs.Tasks
	db     *sql.DB

	Proofs *proofs.Service
}

// New builds a fully initialised application. Persistence uses postgres
// when DATABASE_URL is configured and falls back to the in-memory store
// otherwise.
func New(cfg *config.Config, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.New(logger.LoggingConfig{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
		})
	}

	var (
		store storage.ProofStore
		db    *sql.DB
	)
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(20)
		db.SetConnMaxIdleTime(30 * time.Second)

		pg := postgres.New(db)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := pg.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		store = pg
	} else {
		log.Warn("DATABASE_URL not set; using in-memory proof store")
		store = memory.New()
	}

	ledger, err := ton.NewClient(ton.Config{
		Endpoint:      cfg.Ledger.ToncenterEndpoint,
		APIKey:        cfg.Ledger.ToncenterAPIKey,
		WalletAddress: cfg.Ledger.WalletAddress,
		WalletSeed:    cfg.Ledger.WalletSeed,
		ProofAmount:   cfg.Ledger.ProofAmount,
		CommentPrefix: cfg.Ledger.CommentPrefix,
		MaxRetries:    cfg.Ledger.MaxRetries,
	}, log.WithField("component", "ton"))
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("configure ledger client: %w", err)
	}

	explorer, err := ton.NewExplorer(cfg.Ledger.TonscanBaseURL)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("configure explorer: %w", err)
	}

	tasks := proofs.NewTasks(log.WithField("component", "tasks"))
	proofsSvc := proofs.New(store, ledger, explorer, tasks, log.WithField("component", "proofs"), proofs.Options{
		SettleDelay:    cfg.Ledger.SettleDelay,
		CandidateLimit: cfg.Ledger.CandidateLimit,
	})

	router := httpapi.NewRouter(proofsSvc, log.WithField("component", "httpapi"))
	server := httpserver.New(cfg.Server, log, router)

	return &Application{
		cfg:    cfg,
		log:    log,
		server: server,
		tasks:  tasks,
		db:     db,
		Proofs: proofsSvc,
	}, nil
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the server fails.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the HTTP server, drains in-flight background
// verification tasks and closes the database.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := a.server.Shutdown(shutdownCtx)

	// Give detached verification tasks a chance to record their outcome.
	if !a.tasks.Wait(30 * time.Second) {
		a.log.Warn("background verification tasks still running at shutdown")
	}

	if a.db != nil {
		if closeErr := a.db.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}
