package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// State returns the value stored under key, with found reporting whether
// the key exists.
func (s *Store) State(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM app_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "could not load state %q", key)
	}
	return value, true, nil
}

// SaveState stores value under key, replacing any previous value.
func (s *Store) SaveState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO app_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix())
	if err != nil {
		return errors.Wrapf(err, "could not save state %q", key)
	}
	return nil
}

// SaveSecretState wraps value with the store cipher before persisting it.
func (s *Store) SaveSecretState(ctx context.Context, key, value string) error {
	wrapped, err := s.cipher.Wrap(value)
	if err != nil {
		return errors.Wrapf(err, "could not wrap state %q", key)
	}
	return s.SaveState(ctx, key, wrapped)
}

// SecretState loads and unwraps a secret value.
func (s *Store) SecretState(ctx context.Context, key string) (string, bool, error) {
	value, found, err := s.State(ctx, key)
	if err != nil || !found {
		return "", found, err
	}
	plain, err := s.cipher.Unwrap(value)
	if err != nil {
		return "", false, errors.Wrapf(err, "could not unwrap state %q", key)
	}
	return plain, true, nil
}
