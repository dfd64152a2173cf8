package cli

import (
	"fmt"
	"os/exec"
	"strings"
)

func printUsage() {
	fmt.Println(`miniaccounts - BTP over WebSocket for many client accounts

Terminates client BTP connections, authenticates each one with a bearer
token and gives every account its own ILP address under the node prefix.

Usage:
  miniaccounts [flags]                      Start the server (default)
  miniaccounts server [flags]               Start the server
  miniaccounts token new                    Generate a random client token
  miniaccounts token list [flags]           List accounts with a stored token
  miniaccounts token revoke [flags] ACCOUNT Forget the token stored for ACCOUNT
  miniaccounts version                      Print version
  miniaccounts help                         Show this help

Quick Start:
  1. miniaccounts --store sqlite --address private.moneyd
  2. connect a BTP client to ws://localhost:3000 with any auth_token
  3. miniaccounts token list --store sqlite

Environment Variables:
  MINIACCOUNTS_PORT              WebSocket listen port (default: 3000)
  MINIACCOUNTS_ADDRESS           ILP address of the standalone node (default: private.moneyd)
  MINIACCOUNTS_CURRENCY_SCALE    Asset scale advertised to clients (default: 9)
  MINIACCOUNTS_ASSET_CODE        Asset code advertised to clients (default: XRP)
  MINIACCOUNTS_ALLOWED_ORIGINS   Comma-separated browser origins allowed to connect
  MINIACCOUNTS_STORE             Token store: none|memory|sqlite|badger (default: none)
  MINIACCOUNTS_DB_PATH           SQLite database path (default: ./miniaccounts.db)
  MINIACCOUNTS_BADGER_DIR        Badger data directory (default: ./miniaccounts-badger)
  MINIACCOUNTS_TLS_MODE          TLS mode: off|static|acme (default: off)
  MINIACCOUNTS_ADMIN_LISTEN      Admin listen address for pprof, metrics and health
  MINIACCOUNTS_LOG_LEVEL         Log level: debug|info|warn|error (default: info)

Variables are also read from ./.env when not already set.`)
}

// Version is set at build time via -ldflags.
var Version = "dev"

func init() {
	if Version == "dev" {
		if desc, err := exec.Command("git", "describe", "--tags", "--always").Output(); err == nil {
			if v := strings.TrimSpace(string(desc)); v != "" {
				Version = v + "-dev"
			}
		}
	}
	if Version != "dev" && !strings.HasPrefix(Version, "v") {
		Version = "v" + Version
	}
}

func printVersion() {
	fmt.Println("miniaccounts", Version)
}
