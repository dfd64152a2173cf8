package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/koltyakov/miniaccounts/internal/store"
)

var _ store.KV = (*Store)(nil)

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.getStmt.QueryRowContext(ctx, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// PutIfAbsent relies on the primary key so concurrent writers for the same
// key race inside SQLite and exactly one insert lands.
func (s *Store) PutIfAbsent(ctx context.Context, key, value string) (bool, error) {
	res, err := s.putIfAbsentStmt.ExecContext(ctx, key, value)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]store.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT key, value
FROM kv
WHERE substr(key, 1, ?) = ?
ORDER BY key ASC`, len(prefix), prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Entry
	for rows.Next() {
		var e store.Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, err
		}
		if strings.HasPrefix(e.Key, prefix) {
			out = append(out, e)
		}
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.deleteStmt.ExecContext(ctx, key)
	return err
}
