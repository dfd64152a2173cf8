package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"
)

const (
	shutdownTimeout     = 5 * time.Second
	drainTimeout        = 10 * time.Second
	rateLimiterSweepAge = time.Minute
)

// Run connects the node if needed and serves client connections on the
// configured address until ctx is cancelled or a listener fails.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener. TLS is layered on ln according to
// the configured mode.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if err := s.Connect(ctx); err != nil {
		_ = ln.Close()
		return err
	}

	tlsSetup, err := s.tlsSetup()
	if err != nil {
		_ = ln.Close()
		return err
	}

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig:         tlsSetup.config,
	}
	if tlsSetup.config != nil {
		httpServer.ErrorLog = log.New(newHTTPSErrorLogWriter(s.log, tlsSetup.challenge != nil), "", 0)
	}

	errCh := make(chan error, 2)
	if tlsSetup.challenge != nil {
		go func() {
			s.log.Info("starting ACME challenge server", "addr", tlsSetup.challenge.Addr)
			if err := tlsSetup.challenge.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("challenge server: %w", err)
			}
		}()
	}

	go s.runJanitor(ctx)

	go func() {
		s.log.Info("starting websocket server", "addr", ln.Addr().String(), "tls", s.cfg.TLSMode, "prefix", s.Prefix())
		var err error
		if tlsSetup.config != nil {
			err = httpServer.ServeTLS(ln, "", "")
		} else {
			err = httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("websocket server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownErr := shutdownServer(httpServer, shutdownTimeout)
	if tlsSetup.challenge != nil {
		shutdownErr = errors.Join(shutdownErr, shutdownServer(tlsSetup.challenge, shutdownTimeout))
	}
	s.Disconnect()
	if !waitGroupWait(&s.conns, drainTimeout) {
		s.log.Warn("timed out waiting for client connections to close")
	}
	return errors.Join(runErr, shutdownErr)
}

// runJanitor evicts idle rate limiter buckets until ctx is done.
func (s *Server) runJanitor(ctx context.Context) {
	ticker := time.NewTicker(rateLimiterSweepAge)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.cleanup()
		}
	}
}
