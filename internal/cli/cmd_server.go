package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/koltyakov/miniaccounts/internal/config"
	"github.com/koltyakov/miniaccounts/internal/debughttp"
	"github.com/koltyakov/miniaccounts/internal/ildcp"
	ilog "github.com/koltyakov/miniaccounts/internal/log"
	"github.com/koltyakov/miniaccounts/internal/loopback"
	"github.com/koltyakov/miniaccounts/internal/metrics"
	"github.com/koltyakov/miniaccounts/internal/server"
	"github.com/koltyakov/miniaccounts/internal/store"
	badgerstore "github.com/koltyakov/miniaccounts/internal/store/badger"
	"github.com/koltyakov/miniaccounts/internal/store/sqlite"
	"github.com/koltyakov/miniaccounts/internal/tokenstore"
)

func runServer(ctx context.Context, args []string) int {
	loadServerEnvFromDotEnv(".env")

	cfg, err := config.ParseServerFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "server config error:", err)
		return 2
	}
	logger := ilog.New(cfg.LogLevel)

	tokens, err := openTokenStore(cfg.StoreBackend, cfg.DBPath, cfg.BadgerDir, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "token store error:", err)
		return 1
	}
	if tokens != nil {
		defer func() {
			if err := tokens.Close(); err != nil {
				logger.Warn("failed to close token store", "err", err)
			}
		}()
	}

	m := metrics.New()
	srv := server.New(cfg, tokens, logger, server.Options{Metrics: m})
	node := loopback.New(nodeIdentity(cfg), srv.SendData, logger)
	srv.RegisterDataHandler(node.HandleData)

	if _, err := debughttp.StartAdminServer(ctx, cfg.AdminListen, logger, debughttp.Endpoints{
		Metrics: m.Handler(),
		Health:  func() any { return srv.Health() },
	}); err != nil {
		fmt.Fprintln(os.Stderr, "admin server error:", err)
		return 1
	}

	if err := srv.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "server error:", err)
		return 1
	}
	return 0
}

// nodeIdentity is the ILDCP answer the standalone node gives itself.
func nodeIdentity(cfg config.ServerConfig) ildcp.Response {
	return ildcp.Response{
		ClientAddress: cfg.Address,
		AssetScale:    uint8(cfg.CurrencyScale),
		AssetCode:     cfg.AssetCode,
	}
}

// openTokenStore returns nil for the "none" backend, which runs the server
// stateless.
func openTokenStore(backend, dbPath, badgerDir string, logger *slog.Logger) (*tokenstore.Store, error) {
	switch backend {
	case "", config.StoreNone:
		return nil, nil
	case config.StoreMemory:
		return tokenstore.New(store.NewMemory()), nil
	case config.StoreSQLite:
		db, err := sqlite.Open(dbPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
		}
		return tokenstore.New(db), nil
	case config.StoreBadger:
		db, err := badgerstore.Open(badgerDir, logger)
		if err != nil {
			return nil, fmt.Errorf("open badger %s: %w", badgerDir, err)
		}
		return tokenstore.New(db), nil
	default:
		return nil, fmt.Errorf("unknown token store %q", backend)
	}
}
