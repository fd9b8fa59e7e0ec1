// Package server exposes the refund ledger over HTTP. It simulates the
// ledger environment for the state machine: caller identity comes from the
// request body and transfers are logged, not settled. The trust-critical
// logic all lives in pkg/refund and pkg/merkle.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fairdrop-labs/refund-distributor-go/pkg/persistence"
	"github.com/fairdrop-labs/refund-distributor-go/pkg/refund"
)

// Server serves the refund ledger HTTP API.
type Server struct {
	contract *refund.Contract
	store    persistence.ClaimStore
	logger   *zap.Logger

	// limiter throttles the mutating endpoints; queries are not limited
	limiter *rate.Limiter

	httpServer *http.Server
}

// NewServer wires the ledger and its claim store into an HTTP server on the
// given port.
func NewServer(port int, contract *refund.Contract, store persistence.ClaimStore, logger *zap.Logger) *Server {
	s := &Server{
		contract: contract,
		store:    store,
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Limit(20), 40),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/claim", s.handleClaim)
	mux.HandleFunc("/withdraw", s.handleWithdraw)
	mux.HandleFunc("/fund", s.handleFund)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/claimed/", s.handleClaimed)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/healthz", s.handleHealthz)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Sugar().Infow("Refund server listening", "addr", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
