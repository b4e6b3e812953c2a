package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"gatepass/internal/blacklist/models"
	id "gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
	"gatepass/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Add(ctx context.Context, e *models.Entry) error {
	var addedBy any
	if !e.AddedBy.IsNil() {
		addedBy = e.AddedBy.String()
	}
	_, err := tx.Execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO blacklist_entries (id, estate_id, name, phone, reason, added_by, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID.String(), e.EstateID.String(), e.Name, e.Phone, e.Reason, addedBy, e.AddedAt)
	if err != nil {
		return fmt.Errorf("insert blacklist entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Remove(ctx context.Context, estateID id.EstateID, entryID id.BlacklistEntryID) error {
	res, err := tx.Execer(ctx, s.db).ExecContext(ctx,
		`DELETE FROM blacklist_entries WHERE estate_id = $1 AND id = $2`,
		estateID.String(), entryID.String())
	if err != nil {
		return fmt.Errorf("delete blacklist entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete blacklist entry: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("blacklist entry not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, estateID id.EstateID) ([]*models.Entry, error) {
	rows, err := tx.Execer(ctx, s.db).QueryContext(ctx, `
		SELECT id, estate_id, name, phone, reason, added_by, added_at
		FROM blacklist_entries
		WHERE estate_id = $1
		ORDER BY added_at, id
	`, estateID.String())
	if err != nil {
		return nil, fmt.Errorf("list blacklist: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Entry, 0)
	for rows.Next() {
		var (
			e       models.Entry
			addedBy uuid.NullUUID
		)
		if err := rows.Scan((*uuid.UUID)(&e.ID), (*uuid.UUID)(&e.EstateID), &e.Name, &e.Phone, &e.Reason, &addedBy, &e.AddedAt); err != nil {
			return nil, fmt.Errorf("scan blacklist entry: %w", err)
		}
		if addedBy.Valid {
			e.AddedBy = id.UserID(addedBy.UUID)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blacklist: %w", err)
	}
	return out, nil
}
