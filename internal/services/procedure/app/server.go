// Package app assembles the procedure engine service: sqlite storage, the
// domain service, the notification dispatcher and the HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/firmdesk/firmdesk/internal/platform/metrics"
	"github.com/firmdesk/firmdesk/internal/platform/timeouts"
	procedurehttp "github.com/firmdesk/firmdesk/internal/services/procedure/api/http"
	"github.com/firmdesk/firmdesk/internal/services/procedure/domain"
	"github.com/firmdesk/firmdesk/internal/services/procedure/notify"
	"github.com/firmdesk/firmdesk/internal/services/procedure/storage/sqlite"
	"github.com/firmdesk/firmdesk/internal/services/shared/authctx"
)

// Config holds the assembled server configuration.
type Config struct {
	HTTPAddr    string
	DBPath      string
	TokenSecret string
	TokenIssuer string

	NotifyWorkers   int
	NotifyQueueSize int
}

// Server owns the engine's runtime resources.
type Server struct {
	httpAddr   string
	httpServer *http.Server
	store      *sqlite.Store
	dispatcher *notify.Dispatcher
	cancel     context.CancelFunc
}

// NewServer builds a configured procedure server.
func NewServer(cfg Config) (*Server, error) {
	httpAddr := strings.TrimSpace(cfg.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}

	store, err := openStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	verifier, err := authctx.NewJWTVerifier([]byte(cfg.TokenSecret), cfg.TokenIssuer, "", nil)
	if err != nil {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close store: %v", closeErr)
		}
		return nil, fmt.Errorf("init token verifier: %w", err)
	}

	m := metrics.New()

	dispatcher := notify.NewDispatcher(notify.Config{
		Workers:   cfg.NotifyWorkers,
		QueueSize: cfg.NotifyQueueSize,
	}, notify.LogMessenger{}, store, m)

	dispatchCtx, cancel := context.WithCancel(context.Background())
	dispatcher.Start(dispatchCtx)

	service := domain.NewService(domain.Config{
		Catalog:  store,
		Runs:     store,
		Statuses: store,
		Tasks:    store,
		Users:    store,
		Notifier: dispatcher,
		Metrics:  m,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/", procedurehttp.NewServer(service, verifier).Handler())

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	return &Server{
		httpAddr:   httpAddr,
		httpServer: httpServer,
		store:      store,
		dispatcher: dispatcher,
		cancel:     cancel,
	}, nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("procedure server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	serveErr := make(chan error, 1)
	log.Printf("procedure listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close drains the notification queue and releases storage.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.dispatcher != nil {
		if err := s.dispatcher.Close(); err != nil {
			log.Printf("close notification dispatcher: %v", err)
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close procedure store: %v", err)
		}
	}
}

func openStore(path string) (*sqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open procedure sqlite store: %w", err)
	}
	return store, nil
}
