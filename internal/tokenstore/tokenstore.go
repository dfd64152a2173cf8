// Package tokenstore persists the bearer token bound to each account.
//
// Keys are "<account>:token". A token is written once; later saves for the
// same account are refused so the first client to claim an account owns it.
package tokenstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/koltyakov/miniaccounts/internal/domain"
	"github.com/koltyakov/miniaccounts/internal/store"
)

const keySuffix = ":token"

// Store maps accounts to their tokens on top of a store.KV.
type Store struct {
	kv store.KV
}

func New(kv store.KV) *Store {
	return &Store{kv: kv}
}

func key(account string) string {
	return account + keySuffix
}

// Load returns the stored token for account, or "" when none is stored.
func (s *Store) Load(ctx context.Context, account string) (string, error) {
	v, ok, err := s.kv.Get(ctx, key(account))
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	if !ok {
		return "", nil
	}
	return v, nil
}

// Save stores token for account. It returns [domain.ErrTokenExists] when
// the account already has a token.
func (s *Store) Save(ctx context.Context, account, token string) error {
	ok, err := s.kv.PutIfAbsent(ctx, key(account), token)
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	if !ok {
		return domain.ErrTokenExists
	}
	return nil
}

// List returns every stored account. Tokens are omitted.
func (s *Store) List(ctx context.Context) ([]domain.TokenRecord, error) {
	entries, err := s.kv.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	out := make([]domain.TokenRecord, 0, len(entries))
	for _, e := range entries {
		account, ok := strings.CutSuffix(e.Key, keySuffix)
		if !ok || account == "" {
			continue
		}
		out = append(out, domain.TokenRecord{Account: account})
	}
	return out, nil
}

// Revoke deletes the token stored for account, freeing the account to be
// claimed again.
func (s *Store) Revoke(ctx context.Context, account string) error {
	if err := s.kv.Delete(ctx, key(account)); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.kv.Close()
}
