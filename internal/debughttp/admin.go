// Package debughttp serves the optional admin listener: pprof profiles,
// Prometheus metrics and a JSON health report.
package debughttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	httppprof "net/http/pprof"
	"strings"
	"time"
)

const shutdownTimeout = 5 * time.Second

// Endpoints are the optional handlers mounted next to pprof. Nil fields are
// not mounted.
type Endpoints struct {
	Metrics http.Handler
	Health  func() any
}

// StartAdminServer starts the admin HTTP server on addr and shuts it down
// when ctx is canceled. It returns immediately after the listener is bound so
// address conflicts fail fast. An empty addr disables the server.
func StartAdminServer(ctx context.Context, addr string, log *slog.Logger, endpoints Endpoints) (net.Addr, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Handler:           newAdminMux(endpoints),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		if log != nil {
			log.Info("admin server listening", "addr", ln.Addr().String())
		}
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) && log != nil {
			log.Error("admin server error", "err", err)
		}
	}()

	return ln.Addr(), nil
}

func newAdminMux(endpoints Endpoints) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", httppprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", httppprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", httppprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", httppprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", httppprof.Trace)
	if endpoints.Metrics != nil {
		mux.Handle("/metrics", endpoints.Metrics)
	}
	if endpoints.Health != nil {
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(endpoints.Health())
		})
	}
	return mux
}
