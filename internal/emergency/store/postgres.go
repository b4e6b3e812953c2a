package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"gatepass/internal/emergency/models"
	id "gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
	"gatepass/pkg/platform/tx"
)

const eventColumns = `id, estate_id, user_id, location, verified_by_pin, status, created_at, resolved_at, resolved_by`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, e *models.PanicEvent) error {
	_, err := tx.Execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO panic_events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, NULL)
	`, e.ID.String(), e.EstateID.String(), e.UserID.String(), e.Location, e.VerifiedByPIN, string(e.Status), e.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("panic event %s: %w", e.ID, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("insert panic event: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, eventID id.PanicEventID) (*models.PanicEvent, error) {
	rows, err := tx.Execer(ctx, s.db).QueryContext(ctx,
		`SELECT `+eventColumns+` FROM panic_events WHERE id = $1`, eventID.String())
	if err != nil {
		return nil, fmt.Errorf("find panic event: %w", err)
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("panic event not found: %w", sentinel.ErrNotFound)
	}
	return events[0], nil
}

func (s *PostgresStore) Execute(ctx context.Context, eventID id.PanicEventID, validate func(*models.PanicEvent) error, mutate func(*models.PanicEvent)) (*models.PanicEvent, error) {
	var out *models.PanicEvent
	err := tx.NewSQLRunner(s.db).RunInTx(ctx, func(txCtx context.Context) error {
		exec := tx.Execer(txCtx, s.db)
		rows, err := exec.QueryContext(txCtx,
			`SELECT `+eventColumns+` FROM panic_events WHERE id = $1 FOR UPDATE`, eventID.String())
		if err != nil {
			return fmt.Errorf("lock panic event: %w", err)
		}
		events, err := scanEvents(rows)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return fmt.Errorf("panic event not found: %w", sentinel.ErrNotFound)
		}
		e := events[0]
		if err := validate(e); err != nil {
			return err
		}
		mutate(e)
		var resolvedBy any
		if e.ResolvedBy != nil {
			resolvedBy = e.ResolvedBy.String()
		}
		_, err = exec.ExecContext(txCtx, `
			UPDATE panic_events SET status = $2, resolved_at = $3, resolved_by = $4 WHERE id = $1
		`, e.ID.String(), string(e.Status), e.ResolvedAt, resolvedBy)
		if err != nil {
			return fmt.Errorf("update panic event: %w", err)
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) ListActive(ctx context.Context, estateID id.EstateID) ([]*models.PanicEvent, error) {
	rows, err := tx.Execer(ctx, s.db).QueryContext(ctx, `
		SELECT `+eventColumns+` FROM panic_events
		WHERE estate_id = $1 AND status = 'active'
		ORDER BY created_at DESC
	`, estateID.String())
	if err != nil {
		return nil, fmt.Errorf("list active panic events: %w", err)
	}
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*models.PanicEvent, error) {
	defer rows.Close()
	var out []*models.PanicEvent
	for rows.Next() {
		var (
			e          models.PanicEvent
			status     string
			resolvedAt sql.NullTime
			resolvedBy uuid.NullUUID
		)
		if err := rows.Scan((*uuid.UUID)(&e.ID), (*uuid.UUID)(&e.EstateID), (*uuid.UUID)(&e.UserID),
			&e.Location, &e.VerifiedByPIN, &status, &e.CreatedAt, &resolvedAt, &resolvedBy); err != nil {
			return nil, fmt.Errorf("scan panic event: %w", err)
		}
		e.Status = models.Status(status)
		if resolvedAt.Valid {
			t := resolvedAt.Time
			e.ResolvedAt = &t
		}
		if resolvedBy.Valid {
			u := id.UserID(resolvedBy.UUID)
			e.ResolvedBy = &u
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate panic events: %w", err)
	}
	return out, nil
}
