package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"gatepass/internal/pass/models"
	id "gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
	"gatepass/pkg/platform/tx"
)

// PostgresStore persists passes. Live pass codes are kept unique by a partial
// unique index, surfaced here as ErrAlreadyUsed.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const passColumns = `id, estate_id, resident_id, resident_name, unit_number, visitor_name, phone,
	purpose, vehicle_number, expected_arrival, expected_departure, pass_code, pin_hash, status,
	security_verified, created_at, updated_at, verified_at, exited_at, expired_at, cancelled_at`

func (s *PostgresStore) Create(ctx context.Context, p *models.VisitorPass) error {
	_, err := tx.Execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO visitor_passes (`+passColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`, passArgs(p)...)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("pass code %s: %w", p.PassCode, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("insert pass: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, passID id.PassID) (*models.VisitorPass, error) {
	rows, err := tx.Execer(ctx, s.db).QueryContext(ctx,
		`SELECT `+passColumns+` FROM visitor_passes WHERE id = $1`, passID.String())
	if err != nil {
		return nil, fmt.Errorf("find pass: %w", err)
	}
	passes, err := scanPasses(rows)
	if err != nil {
		return nil, err
	}
	if len(passes) == 0 {
		return nil, fmt.Errorf("pass not found: %w", sentinel.ErrNotFound)
	}
	return passes[0], nil
}

// Execute locks the row FOR UPDATE, so a concurrent transition on the same pass
// waits and then validates against the committed state.
func (s *PostgresStore) Execute(ctx context.Context, passID id.PassID, validate func(*models.VisitorPass) error, mutate func(*models.VisitorPass)) (*models.VisitorPass, error) {
	var out *models.VisitorPass
	err := tx.NewSQLRunner(s.db).RunInTx(ctx, func(txCtx context.Context) error {
		exec := tx.Execer(txCtx, s.db)
		rows, err := exec.QueryContext(txCtx,
			`SELECT `+passColumns+` FROM visitor_passes WHERE id = $1 FOR UPDATE`, passID.String())
		if err != nil {
			return fmt.Errorf("lock pass: %w", err)
		}
		passes, err := scanPasses(rows)
		if err != nil {
			return err
		}
		if len(passes) == 0 {
			return fmt.Errorf("pass not found: %w", sentinel.ErrNotFound)
		}
		p := passes[0]
		if err := validate(p); err != nil {
			return err
		}
		mutate(p)
		_, err = exec.ExecContext(txCtx, `
			UPDATE visitor_passes
			SET status = $2, security_verified = $3, updated_at = $4,
				verified_at = $5, exited_at = $6, expired_at = $7, cancelled_at = $8
			WHERE id = $1
		`, p.ID.String(), string(p.Status), p.SecurityVerified, p.UpdatedAt,
			p.VerifiedAt, p.ExitedAt, p.ExpiredAt, p.CancelledAt)
		if err != nil {
			return fmt.Errorf("update pass: %w", err)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) ListByResident(ctx context.Context, estateID id.EstateID, residentID id.UserID, limit int) ([]*models.VisitorPass, error) {
	rows, err := tx.Execer(ctx, s.db).QueryContext(ctx, `
		SELECT `+passColumns+`
		FROM visitor_passes
		WHERE estate_id = $1 AND resident_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, estateID.String(), residentID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("list resident passes: %w", err)
	}
	return scanPasses(rows)
}

func (s *PostgresStore) ListLive(ctx context.Context, estateID id.EstateID) ([]*models.VisitorPass, error) {
	rows, err := tx.Execer(ctx, s.db).QueryContext(ctx, `
		SELECT `+passColumns+`
		FROM visitor_passes
		WHERE estate_id = $1 AND status IN ('pending', 'active')
		ORDER BY expected_departure
	`, estateID.String())
	if err != nil {
		return nil, fmt.Errorf("list live passes: %w", err)
	}
	return scanPasses(rows)
}

func (s *PostgresStore) ListAllLive(ctx context.Context) ([]*models.VisitorPass, error) {
	rows, err := tx.Execer(ctx, s.db).QueryContext(ctx, `
		SELECT `+passColumns+`
		FROM visitor_passes
		WHERE status IN ('pending', 'active')
		ORDER BY expected_departure
	`)
	if err != nil {
		return nil, fmt.Errorf("list all live passes: %w", err)
	}
	return scanPasses(rows)
}

func passArgs(p *models.VisitorPass) []any {
	return []any{
		p.ID.String(), p.EstateID.String(), p.ResidentID.String(), p.ResidentName, p.UnitNumber,
		p.VisitorName, p.Phone, p.Purpose, p.VehicleNumber, p.ExpectedArrival, p.ExpectedDeparture,
		p.PassCode, p.PINHash, string(p.Status), p.SecurityVerified, p.CreatedAt, p.UpdatedAt,
		p.VerifiedAt, p.ExitedAt, p.ExpiredAt, p.CancelledAt,
	}
}

func scanPasses(rows *sql.Rows) ([]*models.VisitorPass, error) {
	defer rows.Close()
	var out []*models.VisitorPass
	for rows.Next() {
		var (
			p                                          models.VisitorPass
			status                                     string
			verifiedAt, exitedAt, expiredAt, cancelled sql.NullTime
		)
		err := rows.Scan(
			(*uuid.UUID)(&p.ID), (*uuid.UUID)(&p.EstateID), (*uuid.UUID)(&p.ResidentID),
			&p.ResidentName, &p.UnitNumber, &p.VisitorName, &p.Phone, &p.Purpose, &p.VehicleNumber,
			&p.ExpectedArrival, &p.ExpectedDeparture, &p.PassCode, &p.PINHash, &status,
			&p.SecurityVerified, &p.CreatedAt, &p.UpdatedAt,
			&verifiedAt, &exitedAt, &expiredAt, &cancelled,
		)
		if err != nil {
			return nil, fmt.Errorf("scan pass: %w", err)
		}
		p.Status = models.Status(status)
		p.VerifiedAt = nullTime(verifiedAt)
		p.ExitedAt = nullTime(exitedAt)
		p.ExpiredAt = nullTime(expiredAt)
		p.CancelledAt = nullTime(cancelled)
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passes: %w", err)
	}
	return out, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
