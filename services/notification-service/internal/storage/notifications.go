// Package storage persists counselor notifications.
package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/counselbook/libs/db"
)

//go:embed migrations/*.sql
var migrations embed.FS

var ErrNotFound = errors.New("notification not found")

type Notification struct {
	ID            string     `json:"id"`
	CounselorID   string     `json:"counselor_id"`
	AppointmentID string     `json:"appointment_id"`
	Message       string     `json:"message"`
	RedirectURL   string     `json:"redirect_url"`
	CreatedAt     time.Time  `json:"created_at"`
	ReadAt        *time.Time `json:"read_at,omitempty"`
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func Migrate(ctx context.Context, pool *db.Pool) error {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		sql, err := migrations.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}

// Insert assigns an id when n has none and returns the stored row.
func (r *Repository) Insert(ctx context.Context, n Notification) (Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO notifications (id, counselor_id, appointment_id, message, redirect_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, n.ID, n.CounselorID, n.AppointmentID, n.Message, n.RedirectURL).Scan(&n.CreatedAt)
	return n, err
}

// ListForCounselor returns the newest notifications first.
func (r *Repository) ListForCounselor(ctx context.Context, counselorID string, unreadOnly bool, limit int) ([]Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, counselor_id, appointment_id, message, redirect_url, created_at, read_at
		FROM notifications
		WHERE counselor_id = $1 AND ($2 = false OR read_at IS NULL)
		ORDER BY created_at DESC, id
		LIMIT $3
	`, counselorID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Notification, error) {
		var n Notification
		err := row.Scan(&n.ID, &n.CounselorID, &n.AppointmentID, &n.Message, &n.RedirectURL, &n.CreatedAt, &n.ReadAt)
		return n, err
	})
}

// MarkRead stamps read_at once. A notification owned by another counselor
// reports ErrNotFound.
func (r *Repository) MarkRead(ctx context.Context, id, counselorID string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications SET read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND counselor_id = $2
	`, id, counselorID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
