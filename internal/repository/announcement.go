package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUnknownName is returned when an operation requires an existing
// record and none is found.
var ErrUnknownName = errors.New("unknown name")

// Announcement is one row of the names table: the clip selection state
// for a (display name, user) pair.
type Announcement struct {
	Name       string
	UserID     int64
	ActiveFile string
	Random     bool
}

type AnnouncementStore interface {
	ActiveClip(ctx context.Context, name string, userID int64) (string, bool, error)
	RandomEnabled(ctx context.Context, name string, userID int64) (bool, error)
	SetActive(ctx context.Context, name string, userID int64, clip string) error
	ToggleRandom(ctx context.Context, name string, userID int64) error
}

type PostgresAnnouncementRepository struct {
	db *pgxpool.Pool
}

func NewPostgresAnnouncementRepository(db *pgxpool.Pool) *PostgresAnnouncementRepository {
	return &PostgresAnnouncementRepository{db: db}
}

var _ AnnouncementStore = (*PostgresAnnouncementRepository)(nil)

// ActiveClip returns the currently selected clip for a (name, user)
// pair. An absent record or an unset selection yields ok=false, not an
// error; only storage failure is an error.
func (r *PostgresAnnouncementRepository) ActiveClip(ctx context.Context, name string, userID int64) (string, bool, error) {
	const query = `SELECT active_file FROM names WHERE name = $1 AND user_id = $2`

	var activeFile string
	err := r.db.QueryRow(ctx, query, name, userID).Scan(&activeFile)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query active clip: %w", err)
	}
	if activeFile == "" {
		return "", false, nil
	}
	return activeFile, true, nil
}

// RandomEnabled reports whether random mode is on, defaulting to false
// when no record exists.
func (r *PostgresAnnouncementRepository) RandomEnabled(ctx context.Context, name string, userID int64) (bool, error) {
	const query = `SELECT random FROM names WHERE name = $1 AND user_id = $2`

	var random bool
	err := r.db.QueryRow(ctx, query, name, userID).Scan(&random)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query random flag: %w", err)
	}
	return random, nil
}

// SetActive upserts the active clip selection. It creates the record if
// absent and updates only active_file when it exists.
func (r *PostgresAnnouncementRepository) SetActive(ctx context.Context, name string, userID int64, clip string) error {
	const query = `
	INSERT INTO names (name, user_id, active_file)
	VALUES ($1, $2, $3)
	ON CONFLICT (name, user_id) DO UPDATE SET
		active_file = EXCLUDED.active_file
	`

	if _, err := r.db.Exec(ctx, query, name, userID, clip); err != nil {
		return fmt.Errorf("failed to set active clip: %w", err)
	}
	return nil
}

// ToggleRandom flips the random flag in place. It fails with
// ErrUnknownName when no record exists for the pair.
func (r *PostgresAnnouncementRepository) ToggleRandom(ctx context.Context, name string, userID int64) error {
	const query = `UPDATE names SET random = NOT random WHERE name = $1 AND user_id = $2`

	tag, err := r.db.Exec(ctx, query, name, userID)
	if err != nil {
		return fmt.Errorf("failed to toggle random: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownName, name)
	}
	return nil
}

// Get returns the full record for a (name, user) pair. Used by the
// development CLI; absent records yield ErrUnknownName.
func (r *PostgresAnnouncementRepository) Get(ctx context.Context, name string, userID int64) (Announcement, error) {
	const query = `SELECT name, user_id, active_file, random FROM names WHERE name = $1 AND user_id = $2`

	var a Announcement
	err := r.db.QueryRow(ctx, query, name, userID).Scan(&a.Name, &a.UserID, &a.ActiveFile, &a.Random)
	if errors.Is(err, pgx.ErrNoRows) {
		return Announcement{}, fmt.Errorf("%w: %s", ErrUnknownName, name)
	}
	if err != nil {
		return Announcement{}, fmt.Errorf("failed to query announcement: %w", err)
	}
	return a, nil
}
