package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/homestay-booking/backend/internal/storage/models"
)

const blockedDateColumns = `id, room_id, start_date, end_date, reason, notes, source, created_at, updated_at`

// BlockedDateRepository provides data access for blocked date ranges.
type BlockedDateRepository struct {
	BaseRepository
}

// NewBlockedDateRepository creates a new blocked date repository.
func NewBlockedDateRepository(db *DB) *BlockedDateRepository {
	return &BlockedDateRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create inserts a new blocked date range.
func (r *BlockedDateRepository) Create(ctx context.Context, b *models.BlockedDate) error {
	b.ID = GenerateID()
	b.CreatedAt = r.Now()
	b.UpdatedAt = b.CreatedAt

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO blocked_dates (`+blockedDateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.ID, b.RoomID, b.StartDate, b.EndDate, b.Reason, b.Notes, b.Source, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting blocked date: %w", err)
	}

	return nil
}

// GetByID retrieves a blocked date by its ID.
func (r *BlockedDateRepository) GetByID(ctx context.Context, id string) (*models.BlockedDate, error) {
	row := r.DB().QueryRowContext(ctx, `SELECT `+blockedDateColumns+` FROM blocked_dates WHERE id = ?`, id)

	b, err := scanBlockedDate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("blocked date %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying blocked date: %w", err)
	}

	return b, nil
}

// Update rewrites the range and text of an existing blocked date.
func (r *BlockedDateRepository) Update(ctx context.Context, b *models.BlockedDate) error {
	b.UpdatedAt = r.Now()

	result, err := r.DB().ExecContext(ctx, `
		UPDATE blocked_dates SET start_date = ?, end_date = ?, reason = ?, notes = ?, updated_at = ?
		WHERE id = ?
	`, b.StartDate, b.EndDate, b.Reason, b.Notes, b.UpdatedAt, b.ID)
	if err != nil {
		return fmt.Errorf("updating blocked date: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("blocked date %s: %w", b.ID, ErrNotFound)
	}

	return nil
}

// Delete removes a blocked date by ID.
func (r *BlockedDateRepository) Delete(ctx context.Context, id string) error {
	result, err := r.DB().ExecContext(ctx, "DELETE FROM blocked_dates WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting blocked date: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("blocked date %s: %w", id, ErrNotFound)
	}

	return nil
}

// ListByRoom returns all blocked ranges of a room.
func (r *BlockedDateRepository) ListByRoom(ctx context.Context, roomID string) ([]models.BlockedDate, error) {
	return r.list(ctx, `SELECT `+blockedDateColumns+` FROM blocked_dates
		WHERE room_id = ? ORDER BY start_date, created_at`, roomID)
}

// ListByRoomAndSource returns the blocked ranges of a room from one source.
func (r *BlockedDateRepository) ListByRoomAndSource(ctx context.Context, roomID, source string) ([]models.BlockedDate, error) {
	return r.list(ctx, `SELECT `+blockedDateColumns+` FROM blocked_dates
		WHERE room_id = ? AND source = ? ORDER BY start_date, created_at`, roomID, source)
}

// DeleteByRoomAndSource removes every blocked range of a room from one source.
func (r *BlockedDateRepository) DeleteByRoomAndSource(ctx context.Context, roomID, source string) (int64, error) {
	result, err := r.DB().ExecContext(ctx,
		"DELETE FROM blocked_dates WHERE room_id = ? AND source = ?", roomID, source)
	if err != nil {
		return 0, fmt.Errorf("deleting blocked dates: %w", err)
	}

	return result.RowsAffected()
}

func (r *BlockedDateRepository) list(ctx context.Context, query string, args ...any) ([]models.BlockedDate, error) {
	rows, err := r.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying blocked dates: %w", err)
	}
	defer rows.Close()

	var blocked []models.BlockedDate
	for rows.Next() {
		b, err := scanBlockedDate(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning blocked date: %w", err)
		}
		blocked = append(blocked, *b)
	}

	return blocked, rows.Err()
}

func scanBlockedDate(row rowScanner) (*models.BlockedDate, error) {
	var b models.BlockedDate
	err := row.Scan(&b.ID, &b.RoomID, &b.StartDate, &b.EndDate, &b.Reason, &b.Notes, &b.Source, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
