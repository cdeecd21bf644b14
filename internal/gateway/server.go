// ABOUTME: Gateway server: composes port lease, auth, rate limiting, health and tools.
// ABOUTME: Every request is authenticated before it is rate limited before it is dispatched.

package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/emberworks/ember-gateway/internal/auth"
	"github.com/emberworks/ember-gateway/internal/config"
	"github.com/emberworks/ember-gateway/internal/health"
	"github.com/emberworks/ember-gateway/internal/netport"
	"github.com/emberworks/ember-gateway/internal/ratelimit"
	"github.com/emberworks/ember-gateway/internal/store"
	"github.com/emberworks/ember-gateway/internal/tools"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// lastPortSetting is the store key recording the most recently bound port,
// read by the desktop shell to find the gateway after a restart.
const lastPortSetting = "server.last_port"

// Server is the externally reachable gateway service.
type Server struct {
	cfg     *config.Config
	store   store.Store
	authMgr *auth.Manager
	limiter *ratelimit.Limiter
	health  *health.Aggregator
	tools   *tools.Gateway
	metrics *metrics
	logger  *slog.Logger

	allocator *netport.Allocator
	lease     *netport.Lease
	httpSrv   *http.Server
}

// New composes a Server from its dependencies.
func New(cfg *config.Config, st store.Store, authMgr *auth.Manager, limiter *ratelimit.Limiter,
	healthAgg *health.Aggregator, toolGateway *tools.Gateway, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		store:     st,
		authMgr:   authMgr,
		limiter:   limiter,
		health:    healthAgg,
		tools:     toolGateway,
		metrics:   newMetrics(),
		logger:    logger.With("component", "gateway"),
		allocator: netport.NewAllocator(cfg.Server.Host, cfg.Server.BindProbes),
	}
}

// Port returns the bound port, or 0 before Start.
func (s *Server) Port() int {
	if s.lease == nil {
		return 0
	}
	return s.lease.Port
}

// rateKey derives the rate-limit key for a request: the SHA-256 prefix of
// the presented credential when there is one, else the remote host. Token
// material itself is never used as a map key or logged.
func rateKey(r *http.Request) string {
	if token, errMsg := auth.ExtractBearerToken(r.Header.Get("Authorization")); errMsg == "" {
		sum := sha256.Sum256([]byte(token))
		return "tok:" + hex.EncodeToString(sum[:8])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "host:" + host
}

// throttle applies the per-key rate limit. Auth middleware always runs
// before this: the ordering auth -> rate limit -> dispatch holds for every
// authenticated route.
func (s *Server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.limiter.Consume(rateKey(r), 1); err != nil {
			s.writeRateLimited(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// penalizeInvalidAuth deducts penalty points from the caller's key to slow
// credential brute force.
func (s *Server) penalizeInvalidAuth(r *http.Request, reason string) {
	s.metrics.authFailedTotal.Inc()
	s.limiter.Penalty(rateKey(r), s.cfg.RateLimit.PenaltyPoints)
	s.logger.Warn("authentication failed", "reason", reason, "remote", r.RemoteAddr)
}

// instrument records the request counter per route.
func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.requestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Handler builds the routing table. Health is served without a credential
// but still rate limited; tool routes require authentication first, then
// rate limiting, then permission checks.
func (s *Server) Handler() http.Handler {
	authn := auth.Middleware(s.authMgr, s.penalizeInvalidAuth)

	chain := func(perm string, h http.HandlerFunc) http.Handler {
		return authn(s.throttle(auth.RequirePermission(perm)(h)))
	}

	mux := http.NewServeMux()
	mux.Handle("GET /health", s.instrument("/health", s.throttle(http.HandlerFunc(s.handleHealth))))
	mux.Handle("POST /tools/{name}/invoke", s.instrument("/tools/invoke", chain(auth.PermInvoke, s.handleInvoke)))
	mux.Handle("GET /tools/{provider}/test-connection", s.instrument("/tools/test-connection", chain(auth.PermDiagnose, s.handleTestConnection)))

	if s.cfg.Metrics.Enabled {
		mux.Handle("GET "+s.cfg.Metrics.Path, s.metrics.handler())
	}
	return mux
}

// Start acquires the port lease, records the bound port in the config
// store, and serves until ctx is cancelled. The lease is always released
// on the way out, even when serving fails.
func (s *Server) Start(ctx context.Context) error {
	lease, err := s.allocator.Acquire(
		s.cfg.Server.PreferredPort,
		s.cfg.Server.PortRangeMin,
		s.cfg.Server.PortRangeMax,
	)
	if err != nil {
		return fmt.Errorf("acquiring port: %w", err)
	}
	s.lease = lease
	defer func() {
		if err := lease.Release(); err != nil && !errors.Is(err, netport.ErrLeaseReleased) {
			s.logger.Error("failed to release port lease", "error", err)
		}
	}()

	if err := s.store.SetSetting(ctx, lastPortSetting, strconv.Itoa(lease.Port)); err != nil {
		s.logger.Warn("failed to record bound port", "error", err)
	}

	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.Serve(lease.Listener())
	}()

	s.logger.Info("gateway listening", "port", lease.Port)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving: %w", err)
	}
}
