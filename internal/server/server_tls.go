package server

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/acme/autocert"

	"github.com/koltyakov/miniaccounts/internal/config"
)

type tlsSetup struct {
	config    *tls.Config
	challenge *http.Server
}

// tlsSetup builds the listener TLS configuration for the configured mode.
// Mode off yields a zero tlsSetup and the server speaks plain ws://.
func (s *Server) tlsSetup() (tlsSetup, error) {
	switch s.cfg.TLSMode {
	case "", config.TLSOff:
		return tlsSetup{}, nil
	case config.TLSStatic:
		cert, err := s.loadStaticCertificate(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		if err != nil {
			return tlsSetup{}, err
		}
		return tlsSetup{config: &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}}, nil
	case config.TLSACME:
		domain := config.NormalizeDomainHost(s.cfg.TLSDomain)
		if domain == "" {
			return tlsSetup{}, errors.New("acme tls mode requires a domain")
		}
		manager := &autocert.Manager{
			Cache:      autocert.DirCache(s.cfg.CertCacheDir),
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(domain),
		}
		cfg := manager.TLSConfig()
		cfg.MinVersion = tls.VersionTLS12
		return tlsSetup{
			config: cfg,
			challenge: &http.Server{
				Addr:              s.cfg.ListenHTTP,
				Handler:           manager.HTTPHandler(http.NotFoundHandler()),
				ReadHeaderTimeout: 5 * time.Second,
			},
		}, nil
	default:
		return tlsSetup{}, fmt.Errorf("unknown tls mode %q", s.cfg.TLSMode)
	}
}

func (s *Server) loadStaticCertificate(certFile, keyFile string) (tls.Certificate, error) {
	certFile = strings.TrimSpace(certFile)
	keyFile = strings.TrimSpace(keyFile)
	if certFile == "" || keyFile == "" {
		return tls.Certificate{}, errors.New("static tls mode requires both a certificate and a key file")
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("load tls certificate: %w", err)
	}
	subject := ""
	if len(cert.Certificate) > 0 {
		if leaf, err := x509.ParseCertificate(cert.Certificate[0]); err == nil {
			cert.Leaf = leaf
			subject = leaf.Subject.String()
		}
	}
	s.log.Info("static TLS certificate loaded", "cert_file", certFile, "key_file", keyFile, "subject", subject)
	return cert, nil
}

type httpsServerErrorLogWriter struct {
	log                  *slog.Logger
	dynamicACME          bool
	provisioningHintOnce sync.Once
}

func newHTTPSErrorLogWriter(logger *slog.Logger, dynamicACME bool) *httpsServerErrorLogWriter {
	return &httpsServerErrorLogWriter{log: logger, dynamicACME: dynamicACME}
}

func (w *httpsServerErrorLogWriter) Write(p []byte) (n int, err error) {
	line := strings.TrimSpace(string(p))
	if line == "" {
		return len(p), nil
	}
	if w.logTLSHandshakeLine(line) {
		return len(p), nil
	}
	w.log.Warn("https server error", "err", line)
	return len(p), nil
}

func (w *httpsServerErrorLogWriter) logTLSHandshakeLine(line string) bool {
	const marker = "TLS handshake error from "
	idx := strings.Index(line, marker)
	if idx < 0 {
		return false
	}
	payload := line[idx+len(marker):]
	addr, reason, ok := strings.Cut(payload, ": ")
	if !ok {
		w.log.Debug("tls handshake dropped", "detail", payload)
		return true
	}
	reason = strings.TrimSpace(reason)
	if isLikelyScannerTLSReason(reason) {
		w.log.Debug("tls handshake rejected", "remote_addr", strings.TrimSpace(addr), "reason", reason)
		return true
	}
	if w.dynamicACME && isLikelyTLSProvisioningReason(reason) {
		w.provisioningHintOnce.Do(func() {
			w.log.Info("TLS certificate provisioning in progress; initial handshake retries are expected")
		})
		w.log.Debug("tls handshake retried during certificate provisioning", "remote_addr", strings.TrimSpace(addr), "reason", reason)
		return true
	}
	w.log.Warn("tls handshake failed", "remote_addr", strings.TrimSpace(addr), "reason", reason)
	return true
}

func isLikelyTLSProvisioningReason(reason string) bool {
	reason = strings.ToLower(strings.TrimSpace(reason))
	if reason == "" {
		return false
	}
	return strings.Contains(reason, "bad certificate") ||
		strings.Contains(reason, "failed to verify certificate") ||
		strings.Contains(reason, "x509:")
}

func isLikelyScannerTLSReason(reason string) bool {
	reason = strings.ToLower(strings.TrimSpace(reason))
	if reason == "" {
		return false
	}
	return reason == "eof" ||
		strings.Contains(reason, "missing server name") ||
		strings.Contains(reason, "unsupported application protocols") ||
		strings.Contains(reason, "offered only unsupported versions") ||
		strings.Contains(reason, "no cipher suite supported by both client and server") ||
		strings.Contains(reason, "host not allowed") ||
		strings.Contains(reason, "not configured in HostWhitelist") ||
		strings.Contains(reason, "connection reset by peer") ||
		strings.Contains(reason, "i/o timeout") ||
		strings.Contains(reason, "first record does not look like a tls handshake") ||
		strings.Contains(reason, "http request to an https server")
}
