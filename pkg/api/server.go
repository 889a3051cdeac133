// Package api serves the wagering contracts over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/phenomenon0/betchain/pkg/chain"
	"github.com/phenomenon0/betchain/pkg/deploy"
	"github.com/phenomenon0/betchain/pkg/metrics"
)

// AccountHeader carries the caller's address. The local node keeps every
// dev account unlocked, so the header is the whole of authentication.
const AccountHeader = "X-Account"

// Config configures the HTTP layer.
type Config struct {
	RateLimit      float64
	RateBurst      int
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		RateLimit:      20,
		RateBurst:      40,
		CORSOrigins:    []string{"*"},
		RequestTimeout: 30 * time.Second,
	}
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	config  Config
	chain   *chain.Chain
	d       *deploy.Deployment
	logger  *logrus.Logger
	metrics *metrics.BetchainMetrics
	limiter *clientLimiter

	stream http.HandlerFunc
	status func() interface{}
}

// Option configures optional endpoints.
type Option func(*Server)

// WithStream mounts a websocket handler on /ws.
func WithStream(h http.HandlerFunc) Option {
	return func(s *Server) {
		s.stream = h
	}
}

// WithStatus adds fn's result to the health response.
func WithStatus(fn func() interface{}) Option {
	return func(s *Server) {
		s.status = fn
	}
}

// NewServer creates the API. m may be nil.
func NewServer(config Config, c *chain.Chain, d *deploy.Deployment, logger *logrus.Logger, m *metrics.BetchainMetrics, opts ...Option) *Server {
	defaults := DefaultConfig()
	if config.RateLimit <= 0 {
		config.RateLimit = defaults.RateLimit
	}
	if config.RateBurst <= 0 {
		config.RateBurst = defaults.RateBurst
	}
	if len(config.CORSOrigins) == 0 {
		config.CORSOrigins = defaults.CORSOrigins
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = defaults.RequestTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &Server{
		config:  config,
		chain:   c,
		d:       d,
		logger:  logger,
		metrics: m,
		limiter: newClientLimiter(config.RateLimit, config.RateBurst),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.logRequests)
	r.Use(chimiddleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", AccountHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}
	if s.stream != nil {
		r.Get("/ws", s.stream)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Use(chimiddleware.Timeout(s.config.RequestTimeout))

		// Events
		r.Get("/events", s.listBettableEvents)
		r.Get("/events/all", s.listAllEvents)
		r.Get("/events/latest", s.latestEvent)
		r.Get("/events/{eventID}", s.getEvent)
		r.Get("/events/{eventID}/wagers", s.eventWagers)
		r.With(requireAccount).Post("/events", s.addEvent)
		r.With(requireAccount).Post("/events/{eventID}/outcome", s.declareOutcome)
		r.With(requireAccount).Post("/events/{eventID}/settle", s.settleEvent)

		// Oracle binding
		r.Get("/oracle", s.getOracle)
		r.With(requireAccount).Put("/oracle", s.setOracle)

		// Bets
		r.With(requireAccount).Get("/bets", s.listBets)
		r.With(requireAccount).Get("/bets/{eventID}", s.getBet)
		r.With(requireAccount).Post("/bets", s.placeBet)
		r.With(requireAccount).Delete("/bets/{eventID}", s.cancelBet)
		r.With(requireAccount).Post("/bets/{eventID}/settle", s.settleBet)

		// DAI ledger
		r.Get("/dai", s.getToken)
		r.Get("/dai/allowance", s.getAllowance)
		r.With(requireAccount).Post("/dai/transfer", s.transferToken)
		r.With(requireAccount).Post("/dai/approve", s.approveToken)

		// DefiPool
		r.Get("/pool/positions/{address}", s.getPosition)
		r.With(requireAccount).Post("/pool/deposit", s.depositPool)
		r.With(requireAccount).Post("/pool/withdraw", s.withdrawPool)

		// Ownership of Bet and BetOracle
		r.Get("/owners/{contract}", s.getOwner)
		r.With(requireAccount).Put("/owners/{contract}", s.transferOwnership)
		r.With(requireAccount).Delete("/owners/{contract}", s.renounceOwnership)

		// Accounts
		r.Get("/accounts/{address}", s.getAccount)
	})

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	addresses := make(map[string]string)
	for name, addr := range s.d.Addresses() {
		addresses[name] = addr.Hex()
	}
	body := map[string]interface{}{
		"status":           "healthy",
		"timestamp":        time.Now().UTC(),
		"chain_time":       s.chain.Now().UTC(),
		"contracts":        addresses,
		"oracle_connected": s.d.Bet.TestOracleConnection(),
	}
	if s.status != nil {
		body["keeper"] = s.status()
	}
	respondJSON(w, http.StatusOK, body)
}

// updateEscrow refreshes the escrow gauge after a state change on the engine.
func (s *Server) updateEscrow() {
	if s.metrics != nil {
		s.metrics.UpdateEscrow(s.d.Bet.TotalEscrowed())
	}
}
