// Package server terminates BTP over WebSocket for many client accounts and
// multiplexes their ILP traffic onto a single upstream data handler.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/koltyakov/miniaccounts/internal/config"
	"github.com/koltyakov/miniaccounts/internal/domain"
	"github.com/koltyakov/miniaccounts/internal/ildcp"
	"github.com/koltyakov/miniaccounts/internal/metrics"
	"github.com/koltyakov/miniaccounts/internal/tokenstore"
)

// DataHandler receives ILP packets from clients. from is the sender's full
// ILP address, or "" for requests the node makes on its own behalf.
type DataHandler func(ctx context.Context, from string, packet []byte) ([]byte, error)

// MoneyHandler receives BTP transfers from clients.
type MoneyHandler func(ctx context.Context, from string, amount uint64) error

// Options carries the optional collaborators of a Server.
type Options struct {
	Hooks Hooks
	// DebugHostInfo replaces the ILDCP lookup performed by Connect.
	DebugHostInfo *ildcp.Response
	Metrics       *metrics.Metrics
}

type Server struct {
	cfg      config.ServerConfig
	log      *slog.Logger
	metrics  *metrics.Metrics
	hooks    Hooks
	resolver accountResolver
	origins  originFilter
	registry *registry
	calls    *callTable
	limiter  *rateLimiter
	upgrader websocket.Upgrader

	debugHostInfo *ildcp.Response
	host          atomic.Pointer[hostIdentity]

	handlerMu    sync.RWMutex
	dataHandler  DataHandler
	moneyHandler MoneyHandler

	conns  sync.WaitGroup
	liveMu sync.Mutex
	live   map[*conn]struct{}
}

type hostIdentity struct {
	info   ildcp.Response
	prefix string
}

// New builds a Server. A nil tokens store runs the server stateless: every
// token is accepted and the account is always derived from the token.
func New(cfg config.ServerConfig, tokens *tokenstore.Store, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:           cfg,
		log:           logger,
		metrics:       opts.Metrics,
		hooks:         opts.Hooks,
		resolver:      newAccountResolver(tokens),
		origins:       newOriginFilter(cfg.AllowedOrigins),
		registry:      newRegistry(),
		calls:         newCallTable(),
		limiter:       newRateLimiter(cfg.HandshakeRate, cfg.HandshakeBurst),
		debugHostInfo: opts.DebugHostInfo,
		live:          make(map[*conn]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: s.origins.checkRequest,
	}
	return s
}

// RegisterDataHandler installs the upstream handler for client packets.
func (s *Server) RegisterDataHandler(h DataHandler) {
	s.handlerMu.Lock()
	s.dataHandler = h
	s.handlerMu.Unlock()
}

func (s *Server) DeregisterDataHandler() {
	s.RegisterDataHandler(nil)
}

// RegisterMoneyHandler installs the handler for client transfers.
func (s *Server) RegisterMoneyHandler(h MoneyHandler) {
	s.handlerMu.Lock()
	s.moneyHandler = h
	s.handlerMu.Unlock()
}

func (s *Server) DeregisterMoneyHandler() {
	s.RegisterMoneyHandler(nil)
}

func (s *Server) getDataHandler() DataHandler {
	s.handlerMu.RLock()
	defer s.handlerMu.RUnlock()
	return s.dataHandler
}

func (s *Server) getMoneyHandler() MoneyHandler {
	s.handlerMu.RLock()
	defer s.handlerMu.RUnlock()
	return s.moneyHandler
}

// Connect discovers the node's own ILP identity, through the data handler
// unless a debug identity was injected, and runs the pre-connect hook.
// Calling it again after a successful connect is a no-op.
func (s *Server) Connect(ctx context.Context) error {
	if s.host.Load() != nil {
		return nil
	}
	info, err := s.fetchHostInfo(ctx)
	if err != nil {
		return err
	}
	if err := s.hooks.preConnect(ctx); err != nil {
		return fmt.Errorf("pre-connect: %w", err)
	}
	id := &hostIdentity{info: info, prefix: info.ClientAddress + "."}
	if !s.host.CompareAndSwap(nil, id) {
		return nil
	}
	s.log.Info("node identity resolved", "address", info.ClientAddress, "asset_code", info.AssetCode, "asset_scale", info.AssetScale)
	return nil
}

func (s *Server) fetchHostInfo(ctx context.Context) (ildcp.Response, error) {
	if s.debugHostInfo != nil {
		return *s.debugHostInfo, nil
	}
	handler := s.getDataHandler()
	if handler == nil {
		return ildcp.Response{}, fmt.Errorf("fetch node identity: %w", domain.ErrNoDataHandler)
	}
	info, err := ildcp.Fetch(ctx, func(ctx context.Context, packet []byte) ([]byte, error) {
		return handler(ctx, "", packet)
	})
	if err != nil {
		return ildcp.Response{}, fmt.Errorf("fetch node identity: %w", err)
	}
	return info, nil
}

// Disconnect closes every client connection, including those still waiting
// to authenticate, and forgets the node identity.
func (s *Server) Disconnect() {
	for _, c := range s.liveConns() {
		c.close(websocket.CloseGoingAway, "server shutting down")
	}
	s.host.Store(nil)
}

func (s *Server) IsConnected() bool {
	return s.host.Load() != nil
}

// Prefix is the node address followed by a dot, or "" before Connect.
func (s *Server) Prefix() string {
	if id := s.host.Load(); id != nil {
		return id.prefix
	}
	return ""
}

// HostInfo returns the node identity resolved by Connect.
func (s *Server) HostInfo() (ildcp.Response, bool) {
	if id := s.host.Load(); id != nil {
		return id.info, true
	}
	return ildcp.Response{}, false
}

// Stats reports registry and pending call counts.
func (s *Server) Stats() domain.Stats {
	accounts, conns := s.registry.counts()
	return domain.Stats{Accounts: accounts, Connections: conns, Pending: s.calls.len()}
}

// Handler serves client WebSocket upgrades on every path except /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/", s.handleWebSocket)
	return mux
}

// Health is the payload served by /healthz.
func (s *Server) Health() domain.HealthResponse {
	return domain.HealthResponse{
		Status:    "ok",
		Connected: s.IsConnected(),
		Prefix:    s.Prefix(),
		Stats:     s.Stats(),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeJSON(w, http.StatusMethodNotAllowed, domain.ErrorResponse{Error: "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, s.Health())
}

func (s *Server) address(account string) string {
	return s.Prefix() + account
}

func (s *Server) updateConnectionGauges() {
	accounts, conns := s.registry.counts()
	s.metrics.SetConnections(conns, accounts)
}
