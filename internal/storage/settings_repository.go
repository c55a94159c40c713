package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SettingsRepository provides access to the calendar_settings key-value table.
type SettingsRepository struct {
	BaseRepository
}

// NewSettingsRepository creates a new settings repository.
func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Get returns the value stored under key.
func (r *SettingsRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.DB().QueryRowContext(ctx, "SELECT value FROM calendar_settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("querying setting %s: %w", key, err)
	}

	return value, true, nil
}

// Set upserts a setting.
func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO calendar_settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, r.Now())
	if err != nil {
		return fmt.Errorf("updating setting %s: %w", key, err)
	}

	return nil
}

// Delete removes the given keys. Missing keys are ignored.
func (r *SettingsRepository) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	_, err := r.DB().ExecContext(ctx,
		"DELETE FROM calendar_settings WHERE key IN ("+placeholders(len(keys))+")", args...)
	if err != nil {
		return fmt.Errorf("deleting settings: %w", err)
	}

	return nil
}

// List returns every setting.
func (r *SettingsRepository) List(ctx context.Context) (map[string]string, error) {
	rows, err := r.DB().QueryContext(ctx, "SELECT key, value FROM calendar_settings")
	if err != nil {
		return nil, fmt.Errorf("querying settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning setting: %w", err)
		}
		settings[key] = value
	}

	return settings, rows.Err()
}
