package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"gatepass/internal/movement/models"
	id "gatepass/pkg/domain"
	"gatepass/pkg/platform/tx"
)

// PostgresStore orders entries by the table's seq column, so entries written
// in the same instant keep their append order.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, e models.LogEntry) error {
	var verifiedBy any
	if !e.VerifiedBy.IsNil() {
		verifiedBy = e.VerifiedBy.String()
	}
	_, err := tx.Execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO movement_log (id, estate_id, pass_id, visitor_name, pass_code, type, verified_by, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID.String(), e.EstateID.String(), e.PassID.String(), e.VisitorName, e.PassCode, string(e.Type), verifiedBy, e.Timestamp)
	if err != nil {
		return fmt.Errorf("append movement: %w", err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, estateID id.EstateID, n int) ([]models.LogEntry, error) {
	rows, err := tx.Execer(ctx, s.db).QueryContext(ctx, `
		SELECT id, estate_id, pass_id, visitor_name, pass_code, type, verified_by, occurred_at
		FROM movement_log
		WHERE estate_id = $1
		ORDER BY seq DESC
		LIMIT $2
	`, estateID.String(), n)
	if err != nil {
		return nil, fmt.Errorf("recent movements: %w", err)
	}
	return scanEntries(rows)
}

func (s *PostgresStore) ForPass(ctx context.Context, estateID id.EstateID, passID id.PassID) ([]models.LogEntry, error) {
	rows, err := tx.Execer(ctx, s.db).QueryContext(ctx, `
		SELECT id, estate_id, pass_id, visitor_name, pass_code, type, verified_by, occurred_at
		FROM movement_log
		WHERE estate_id = $1 AND pass_id = $2
		ORDER BY seq
	`, estateID.String(), passID.String())
	if err != nil {
		return nil, fmt.Errorf("pass movements: %w", err)
	}
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]models.LogEntry, error) {
	defer rows.Close()
	var out []models.LogEntry
	for rows.Next() {
		var (
			e          models.LogEntry
			kind       string
			verifiedBy uuid.NullUUID
		)
		if err := rows.Scan((*uuid.UUID)(&e.ID), (*uuid.UUID)(&e.EstateID), (*uuid.UUID)(&e.PassID),
			&e.VisitorName, &e.PassCode, &kind, &verifiedBy, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		e.Type = models.Type(kind)
		if verifiedBy.Valid {
			e.VerifiedBy = id.UserID(verifiedBy.UUID)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movements: %w", err)
	}
	return out, nil
}
