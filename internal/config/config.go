package config

import (
	"errors"
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/koltyakov/miniaccounts/internal/netutil"
)

// ServerConfig holds the settings for the miniaccounts WebSocket server and
// its supporting listeners.
type ServerConfig struct {
	Port           int
	ListenHost     string
	AllowedOrigins []string
	CurrencyScale  int
	AssetCode      string
	Address        string

	StoreBackend string
	DBPath       string
	BadgerDir    string

	TLSMode      string
	TLSCertFile  string
	TLSKeyFile   string
	TLSDomain    string
	CertCacheDir string
	ListenHTTP   string

	LogLevel        string
	AdminListen     string
	ResponseTimeout time.Duration
	PingInterval    time.Duration
	MaxMessageBytes int64
	HandshakeRate   float64
	HandshakeBurst  int
}

// Store backends.
const (
	StoreNone   = "none"
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreBadger = "badger"
)

// TLS modes.
const (
	TLSOff    = "off"
	TLSStatic = "static"
	TLSACME   = "acme"
)

const defaultPort = 3000
const defaultCurrencyScale = 9
const defaultAssetCode = "XRP"
const defaultAddress = "private.moneyd"
const defaultServerDBPath = "./miniaccounts.db"
const defaultBadgerDir = "./miniaccounts-badger"
const defaultServerCertCacheDir = "./cert"
const defaultServerHTTPChallengeListen = ":80"
const defaultResponseTimeout = 35 * time.Second
const defaultPingInterval = 30 * time.Second
const defaultMaxMessageBytes = 1 << 20
const defaultHandshakeRate = 5
const defaultHandshakeBurst = 20

// ParseServerFlags builds a ServerConfig from MINIACCOUNTS_* environment
// variables overridden by command-line flags.
func ParseServerFlags(args []string) (ServerConfig, error) {
	cfg := ServerConfig{
		Port:            envIntOrDefault("MINIACCOUNTS_PORT", defaultPort),
		ListenHost:      envOrDefault("MINIACCOUNTS_LISTEN_HOST", ""),
		CurrencyScale:   envIntOrDefault("MINIACCOUNTS_CURRENCY_SCALE", defaultCurrencyScale),
		AssetCode:       envOrDefault("MINIACCOUNTS_ASSET_CODE", defaultAssetCode),
		Address:         envOrDefault("MINIACCOUNTS_ADDRESS", defaultAddress),
		StoreBackend:    envOrDefault("MINIACCOUNTS_STORE", StoreNone),
		DBPath:          envOrDefault("MINIACCOUNTS_DB_PATH", defaultServerDBPath),
		BadgerDir:       envOrDefault("MINIACCOUNTS_BADGER_DIR", defaultBadgerDir),
		TLSMode:         envOrDefault("MINIACCOUNTS_TLS_MODE", TLSOff),
		TLSCertFile:     envOrDefault("MINIACCOUNTS_TLS_CERT_FILE", ""),
		TLSKeyFile:      envOrDefault("MINIACCOUNTS_TLS_KEY_FILE", ""),
		TLSDomain:       envOrDefault("MINIACCOUNTS_TLS_DOMAIN", ""),
		CertCacheDir:    envOrDefault("MINIACCOUNTS_CERT_CACHE_DIR", defaultServerCertCacheDir),
		ListenHTTP:      envOrDefault("MINIACCOUNTS_LISTEN_HTTP_CHALLENGE", defaultServerHTTPChallengeListen),
		LogLevel:        envOrDefault("MINIACCOUNTS_LOG_LEVEL", "info"),
		AdminListen:     envOrDefault("MINIACCOUNTS_ADMIN_LISTEN", ""),
		ResponseTimeout: envDurationOrDefault("MINIACCOUNTS_RESPONSE_TIMEOUT", defaultResponseTimeout),
		PingInterval:    envDurationOrDefault("MINIACCOUNTS_PING_INTERVAL", defaultPingInterval),
		MaxMessageBytes: int64(envIntOrDefault("MINIACCOUNTS_MAX_MESSAGE_BYTES", defaultMaxMessageBytes)),
		HandshakeRate:   envFloatOrDefault("MINIACCOUNTS_HANDSHAKE_RATE", defaultHandshakeRate),
		HandshakeBurst:  envIntOrDefault("MINIACCOUNTS_HANDSHAKE_BURST", defaultHandshakeBurst),
	}
	origins := envOrDefault("MINIACCOUNTS_ALLOWED_ORIGINS", "")

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "WebSocket listen port")
	fs.StringVar(&cfg.ListenHost, "host", cfg.ListenHost, "WebSocket listen host (empty = all interfaces)")
	fs.StringVar(&origins, "allowed-origins", origins, "Comma-separated browser origins allowed to connect")
	fs.IntVar(&cfg.CurrencyScale, "currency-scale", cfg.CurrencyScale, "Asset scale advertised to clients")
	fs.StringVar(&cfg.AssetCode, "asset-code", cfg.AssetCode, "Asset code advertised by the standalone node")
	fs.StringVar(&cfg.Address, "address", cfg.Address, "ILP address of the standalone node")
	fs.StringVar(&cfg.StoreBackend, "store", cfg.StoreBackend, "Token store: none|memory|sqlite|badger")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.BadgerDir, "badger-dir", cfg.BadgerDir, "Badger data directory")
	fs.StringVar(&cfg.TLSMode, "tls-mode", cfg.TLSMode, "TLS mode: off|static|acme")
	fs.StringVar(&cfg.TLSCertFile, "tls-cert-file", cfg.TLSCertFile, "Static TLS cert PEM file")
	fs.StringVar(&cfg.TLSKeyFile, "tls-key-file", cfg.TLSKeyFile, "Static TLS key PEM file")
	fs.StringVar(&cfg.TLSDomain, "tls-domain", cfg.TLSDomain, "Domain for ACME certificates")
	fs.StringVar(&cfg.CertCacheDir, "cert-cache-dir", cfg.CertCacheDir, "ACME cert cache dir")
	fs.StringVar(&cfg.ListenHTTP, "http-challenge-listen", cfg.ListenHTTP, "HTTP-01 challenge listen address")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug|info|warn|error")
	fs.StringVar(&cfg.AdminListen, "admin-listen", cfg.AdminListen, "Admin listen address for pprof, metrics and health (empty = disabled)")
	fs.DurationVar(&cfg.ResponseTimeout, "response-timeout", cfg.ResponseTimeout, "Timeout waiting for a client reply")
	fs.DurationVar(&cfg.PingInterval, "ping-interval", cfg.PingInterval, "WebSocket keepalive ping interval")
	fs.Int64Var(&cfg.MaxMessageBytes, "max-message-bytes", cfg.MaxMessageBytes, "Maximum inbound WebSocket message size")
	fs.Float64Var(&cfg.HandshakeRate, "handshake-rate", cfg.HandshakeRate, "Allowed WebSocket upgrades per second per remote IP (0 = unlimited)")
	fs.IntVar(&cfg.HandshakeBurst, "handshake-burst", cfg.HandshakeBurst, "Handshake rate limiter burst")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	cfg.AllowedOrigins = splitList(origins)
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	cfg.TLSMode = strings.ToLower(strings.TrimSpace(cfg.TLSMode))
	cfg.Address = strings.TrimSpace(cfg.Address)
	return cfg, cfg.Validate()
}

// Validate reports the first invalid setting.
func (cfg ServerConfig) Validate() error {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return errors.New("port must be between 0 and 65535")
	}
	if cfg.CurrencyScale < 0 || cfg.CurrencyScale > 255 {
		return errors.New("currency scale must be between 0 and 255")
	}
	if cfg.Address == "" {
		return errors.New("missing --address or MINIACCOUNTS_ADDRESS")
	}
	switch cfg.StoreBackend {
	case StoreNone, StoreMemory:
	case StoreSQLite:
		if strings.TrimSpace(cfg.DBPath) == "" {
			return errors.New("sqlite store requires --db")
		}
	case StoreBadger:
		if strings.TrimSpace(cfg.BadgerDir) == "" {
			return errors.New("badger store requires --badger-dir")
		}
	default:
		return errors.New("store must be one of: none, memory, sqlite, badger")
	}
	switch cfg.TLSMode {
	case TLSOff:
	case TLSStatic:
		if cfg.TLSCertFile == "" || cfg.TLSKeyFile == "" {
			return errors.New("static tls mode requires --tls-cert-file and --tls-key-file")
		}
	case TLSACME:
		if normalizeDomainHost(cfg.TLSDomain) == "" {
			return errors.New("acme tls mode requires --tls-domain")
		}
	default:
		return errors.New("tls mode must be one of: off, static, acme")
	}
	if cfg.ResponseTimeout <= 0 {
		return errors.New("response timeout must be > 0")
	}
	if cfg.PingInterval <= 0 {
		return errors.New("ping interval must be > 0")
	}
	if cfg.MaxMessageBytes <= 0 {
		return errors.New("max message bytes must be > 0")
	}
	if cfg.HandshakeRate < 0 {
		return errors.New("handshake rate must be >= 0")
	}
	return nil
}

// ListenAddr returns the host:port the WebSocket server binds.
func (cfg ServerConfig) ListenAddr() string {
	return cfg.ListenHost + ":" + strconv.Itoa(cfg.Port)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloatOrDefault(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOrDefault(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// NormalizeDomainHost strips scheme, path, and port from v.
func NormalizeDomainHost(v string) string {
	return normalizeDomainHost(v)
}

func normalizeDomainHost(v string) string {
	v = strings.TrimSpace(strings.ToLower(v))
	v = strings.TrimPrefix(v, "https://")
	v = strings.TrimPrefix(v, "http://")
	if idx := strings.Index(v, "/"); idx >= 0 {
		v = v[:idx]
	}
	return netutil.NormalizeHost(v)
}
