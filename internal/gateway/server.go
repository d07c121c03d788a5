package gateway

import (
	"context"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/openafpm/cadstream/internal/cache"
	"github.com/openafpm/cadstream/internal/config"
)

// Server is the HTTP gateway fronting the singleflight build cache: it
// parses and canonicalizes request parameters, submits builds, and
// streams progress and outcome back over SSE.
type Server struct {
	cfg     config.GatewayConfig
	cache   *cache.SingleflightCache
	baseCtx context.Context
	cancel  context.CancelFunc
	httpSrv *http.Server
	logger  *log.Logger
}

// New creates a Server with its own SingleflightCache.
func New(cfg config.GatewayConfig) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		cache:   cache.New(),
		baseCtx: ctx,
		cancel:  cancel,
		logger:  log.New(os.Stderr, "[cadstream-gateway] ", log.LstdFlags),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /visualize/{assembly}/stream", s.handleVisualize)
	mux.HandleFunc("GET /cncOverview/stream", s.handleCNCOverview)
	mux.HandleFunc("GET /dimensionTables/stream", s.handleDimensionTables)

	s.httpSrv = &http.Server{
		Handler:      csrfProtect(mux, cfg.Addr),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE requires no write timeout
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	return s
}

// ListenAndServe starts the server and blocks until it is shut down or
// ctx is cancelled by the caller.
func (s *Server) ListenAndServe(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.logger.Printf("context cancelled, shutting down...")
		s.Shutdown()
	}()

	s.logger.Printf("listening on %s", s.cfg.Addr)
	s.httpSrv.Addr = s.cfg.Addr
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// csrfProtect rejects cross-origin requests carrying an Origin header that
// doesn't resolve to localhost. Browsers set Origin automatically on
// cross-origin requests, so a missing header (CLI/programmatic callers) is
// allowed through and only a mismatched browser-set one is blocked.
func csrfProtect(next http.Handler, _ string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			u, err := url.Parse(origin)
			if err != nil {
				http.Error(w, `{"error":"invalid Origin header"}`, http.StatusForbidden)
				return
			}
			host := u.Hostname()
			if host != "localhost" && host != "127.0.0.1" && host != "::1" {
				http.Error(w, `{"error":"cross-origin request blocked"}`, http.StatusForbidden)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown gracefully drains in-flight requests and stops the listener.
func (s *Server) Shutdown() {
	// Cancel the in-flight build, if any.
	s.cache.CancelCurrent()

	// Give HTTP connections time to drain.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	_ = s.httpSrv.Shutdown(shutdownCtx)

	s.cancel()
}
