package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/CashierHQ/cashier-sub000/build"
	"github.com/CashierHQ/cashier-sub000/service"
)

var log = build.NewSubLogger(build.SubsystemAPI)

// Server is the HTTP/JSON transport in front of service.Service. It is
// the Go-native substitute for the gRPC + grpc-gateway pair named in
// SPEC_FULL.md §B's domain stack table; see cashier.proto and
// DESIGN.md for why the transport is net/http rather than generated
// gRPC stubs in this build.
type Server struct {
	svc        *service.Service
	mux        *http.ServeMux
	httpServer *http.Server
	shed       *rate.Limiter
}

// ShedConfig configures the global inbound QPS guard (SPEC_FULL.md §B): independent of
// and in front of service.Service's per-method business rate limiter,
// this is a coarse defense against the process being overwhelmed before
// a request ever reaches the business logic.
type ShedConfig struct {
	RatePerSecond float64
	Burst         int
}

// DefaultShedConfig mirrors a generous but real ceiling: far above any
// legitimate per-method rate limit, it only trips under abuse or a
// runaway retry storm.
func DefaultShedConfig() ShedConfig { return ShedConfig{RatePerSecond: 200, Burst: 400} }

// New builds a Server bound to addr, wiring every spec.md §6 entry
// point as a JSON endpoint (the link and user-links lookups read query
// parameters, the rest decode a JSON request body) plus a Prometheus /metrics
// handler.
func New(svc *service.Service, addr string, shed ShedConfig) *Server {
	s := &Server{
		svc:  svc,
		mux:  http.NewServeMux(),
		shed: rate.NewLimiter(rate.Limit(shed.RatePerSecond), shed.Burst),
	}
	s.routes()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.shedMiddleware(s.mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/v1/links/create", s.handleCreateLink)
	s.mux.HandleFunc("/v1/links/update", s.handleUpdateLink)
	s.mux.HandleFunc("/v1/links/get", s.handleGetLink)
	s.mux.HandleFunc("/v1/links/user", s.handleUserGetLinks)
	s.mux.HandleFunc("/v1/links/disable", s.handleDisableLink)
	s.mux.HandleFunc("/v1/actions/create", s.handleCreateAction)
	s.mux.HandleFunc("/v1/actions/process", s.handleProcessAction)
	s.mux.HandleFunc("/v1/actions/update", s.handleUpdateAction)
	s.mux.HandleFunc("/v1/transactions/trigger", s.handleTriggerTransaction)
	s.mux.Handle("/metrics", promhttp.Handler())
}

// shedMiddleware rejects a request outright once the global QPS ceiling
// is exceeded, before it ever touches service.Service's locking or
// per-method rate limiter.
func (s *Server) shedMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.shed.Allow() {
			writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
				Kind: "RATE_LIMIT", Code: "inbound_shed", Detail: "server is over its global QPS ceiling",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe starts the HTTP server, blocking until it is shut down.
func (s *Server) ListenAndServe() error {
	log.Infof("api listening on %s", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests before returning.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
