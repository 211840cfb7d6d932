// Package api serves a read-only local status endpoint while a batch runs.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cutmassively/cutm/internal/ledger"
	"github.com/cutmassively/cutm/internal/stats"
)

// StatsSource provides live counters for /status.
type StatsSource interface {
	Snapshot() stats.Snapshot
}

// RunReader is the part of the ledger the endpoint reads.
type RunReader interface {
	GetRun(ctx context.Context, id string) (*ledger.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*ledger.Run, error)
	ListFragments(ctx context.Context, runID string) ([]*ledger.Fragment, error)
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Addr        string
	Stats       StatsSource
	Runs        RunReader // nil when the ledger is disabled
	RunID       string
	SourceVideo string
	Version     string
	Logger      *slog.Logger
	StartTime   time.Time
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

// Start binds the address and serves in the background. The returned
// channel receives the serve error, if any, once the server stops.
func (s *Server) Start() (<-chan error, error) {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return nil, err
	}
	s.httpServer.Addr = ln.Addr().String()
	s.logger.Info("starting status server", "addr", s.httpServer.Addr)

	errc := make(chan error, 1)
	go func() {
		err := s.httpServer.Serve(ln)
		if err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()
	return errc, nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down status server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
