package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/koltyakov/miniaccounts/internal/auth"
	"github.com/koltyakov/miniaccounts/internal/config"
	ilog "github.com/koltyakov/miniaccounts/internal/log"
	"github.com/koltyakov/miniaccounts/internal/tokenstore"
)

func runTokenAdmin(ctx context.Context, args []string, out io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: miniaccounts token <new|list|revoke> [flags]")
		return 2
	}
	switch args[0] {
	case "new":
		return runTokenNew(out)
	case "list":
		return runTokenList(ctx, args[1:], out)
	case "revoke":
		return runTokenRevoke(ctx, args[1:], out)
	default:
		fmt.Fprintln(os.Stderr, "unknown token command:", args[0])
		return 2
	}
}

type tokenStoreFlags struct {
	backend   string
	dbPath    string
	badgerDir string
}

func (f *tokenStoreFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.backend, "store", envOr("MINIACCOUNTS_STORE", config.StoreSQLite), "Token store: sqlite|badger")
	fs.StringVar(&f.dbPath, "db", envOr("MINIACCOUNTS_DB_PATH", "./miniaccounts.db"), "SQLite database path")
	fs.StringVar(&f.badgerDir, "badger-dir", envOr("MINIACCOUNTS_BADGER_DIR", "./miniaccounts-badger"), "Badger data directory")
}

func (f *tokenStoreFlags) open() (*tokenstore.Store, error) {
	backend := strings.ToLower(strings.TrimSpace(f.backend))
	if backend != config.StoreSQLite && backend != config.StoreBadger {
		return nil, fmt.Errorf("token admin needs a persistent store (sqlite or badger), got %q", f.backend)
	}
	return openTokenStore(backend, f.dbPath, f.badgerDir, ilog.NewTo(os.Stderr, "warn"))
}

// runTokenNew prints a fresh random token and the account it authenticates
// as when no auth_username is sent.
func runTokenNew(out io.Writer) int {
	token, err := auth.GenerateToken()
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate token:", err)
		return 1
	}
	fmt.Fprintln(out, "token:", token)
	fmt.Fprintln(out, "account:", auth.AccountFromToken(token))
	return 0
}

func runTokenList(ctx context.Context, args []string, out io.Writer) int {
	fs := flag.NewFlagSet("token-list", flag.ContinueOnError)
	var sf tokenStoreFlags
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	tokens, err := sf.open()
	if err != nil {
		fmt.Fprintln(os.Stderr, "token store error:", err)
		return 1
	}
	defer func() { _ = tokens.Close() }()

	records, err := tokens.List(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list tokens:", err)
		return 1
	}
	for _, r := range records {
		fmt.Fprintln(out, r.Account)
	}
	return 0
}

func runTokenRevoke(ctx context.Context, args []string, out io.Writer) int {
	fs := flag.NewFlagSet("token-revoke", flag.ContinueOnError)
	var sf tokenStoreFlags
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 || strings.TrimSpace(fs.Arg(0)) == "" {
		fmt.Fprintln(os.Stderr, "usage: miniaccounts token revoke [flags] ACCOUNT")
		return 2
	}
	account := strings.TrimSpace(fs.Arg(0))

	tokens, err := sf.open()
	if err != nil {
		fmt.Fprintln(os.Stderr, "token store error:", err)
		return 1
	}
	defer func() { _ = tokens.Close() }()

	if err := tokens.Revoke(ctx, account); err != nil {
		fmt.Fprintln(os.Stderr, "revoke token:", err)
		return 1
	}
	fmt.Fprintln(out, "revoked:", account)
	return 0
}
