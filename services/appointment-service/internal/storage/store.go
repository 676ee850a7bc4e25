// Package storage is the Postgres implementation of the appointment, slot,
// token, counselor and goal stores.
package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/md-rashed-zaman/counselbook/libs/db"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	pool *db.Pool
}

func New(pool *db.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate applies the embedded schema files in name order. Every statement is
// idempotent.
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

const (
	codeUniqueViolation = "23505"
	studentSlotIndex    = "appointments_student_slot_uniq"
)

func pgCode(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

// classify keeps domain errors and maps driver errors to kinds.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var me *model.Error
	if errors.As(err, &me) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Wrap(op, model.ErrNotFound, "", err)
	}
	if code, constraint := pgCode(err); code == codeUniqueViolation && constraint == studentSlotIndex {
		return model.Wrap(op, model.ErrDuplicateBooking, "student already booked this slot", err)
	}
	return model.Wrap(op, model.ErrPersistence, "", err)
}
