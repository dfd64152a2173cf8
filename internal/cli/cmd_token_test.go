package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/koltyakov/miniaccounts/internal/auth"
	"github.com/koltyakov/miniaccounts/internal/config"
	"github.com/koltyakov/miniaccounts/internal/ildcp"
)

func seedTokens(t *testing.T, backend, dbPath, badgerDir string, accounts ...string) {
	t.Helper()
	tokens, err := openTokenStore(backend, dbPath, badgerDir, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = tokens.Close() }()
	for _, a := range accounts {
		if err := tokens.Save(context.Background(), a, "token-"+a); err != nil {
			t.Fatal(err)
		}
	}
}

func TestTokenListAndRevoke(t *testing.T) {
	for _, backend := range []string{config.StoreSQLite, config.StoreBadger} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			dbPath := filepath.Join(dir, "tokens.db")
			badgerDir := filepath.Join(dir, "badger")
			seedTokens(t, backend, dbPath, badgerDir, "bob", "alice")
			flags := []string{"--store", backend, "--db", dbPath, "--badger-dir", badgerDir}

			var out bytes.Buffer
			if code := runTokenAdmin(context.Background(), append([]string{"list"}, flags...), &out); code != 0 {
				t.Fatalf("list exit code %d", code)
			}
			if got := out.String(); got != "alice\nbob\n" {
				t.Fatalf("unexpected list output %q", got)
			}

			out.Reset()
			args := append(append([]string{"revoke"}, flags...), "alice")
			if code := runTokenAdmin(context.Background(), args, &out); code != 0 {
				t.Fatalf("revoke exit code %d", code)
			}
			if !strings.Contains(out.String(), "revoked: alice") {
				t.Fatalf("unexpected revoke output %q", out.String())
			}

			out.Reset()
			if code := runTokenAdmin(context.Background(), append([]string{"list"}, flags...), &out); code != 0 {
				t.Fatalf("list exit code %d", code)
			}
			if got := out.String(); got != "bob\n" {
				t.Fatalf("expected alice to be revoked, got %q", got)
			}
		})
	}
}

func TestTokenAdminUsageErrors(t *testing.T) {
	var out bytes.Buffer
	ctx := context.Background()
	if code := runTokenAdmin(ctx, nil, &out); code != 2 {
		t.Fatalf("expected usage exit code, got %d", code)
	}
	if code := runTokenAdmin(ctx, []string{"rotate"}, &out); code != 2 {
		t.Fatalf("expected unknown command exit code, got %d", code)
	}
	if code := runTokenAdmin(ctx, []string{"revoke", "--store", "sqlite"}, &out); code != 2 {
		t.Fatalf("expected missing account exit code, got %d", code)
	}
	if code := runTokenAdmin(ctx, []string{"list", "--store", "memory"}, &out); code != 1 {
		t.Fatalf("expected non-persistent store to be refused, got %d", code)
	}
}

func TestOpenTokenStoreBackends(t *testing.T) {
	t.Parallel()

	tokens, err := openTokenStore(config.StoreNone, "", "", nil)
	if err != nil || tokens != nil {
		t.Fatalf("expected no store for none backend, got %v %v", tokens, err)
	}
	tokens, err = openTokenStore(config.StoreMemory, "", "", nil)
	if err != nil || tokens == nil {
		t.Fatalf("expected memory store, got %v %v", tokens, err)
	}
	_ = tokens.Close()
	if _, err := openTokenStore("redis", "", "", nil); err == nil {
		t.Fatal("expected unknown backend to fail")
	}
}

func TestNodeIdentity(t *testing.T) {
	t.Parallel()

	got := nodeIdentity(config.ServerConfig{Address: "private.moneyd", CurrencyScale: 6, AssetCode: "USD"})
	want := ildcp.Response{ClientAddress: "private.moneyd", AssetScale: 6, AssetCode: "USD"}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestTokenNewPrintsTokenAndAccount(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if code := runTokenAdmin(context.Background(), []string{"new"}, &out); code != 0 {
		t.Fatalf("new exit code %d", code)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("unexpected output %q", out.String())
	}
	token, ok := strings.CutPrefix(lines[0], "token: ")
	if !ok || token == "" {
		t.Fatalf("unexpected token line %q", lines[0])
	}
	if lines[1] != "account: "+auth.AccountFromToken(token) {
		t.Fatalf("unexpected account line %q", lines[1])
	}
}
