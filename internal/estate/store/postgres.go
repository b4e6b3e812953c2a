package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"gatepass/internal/estate/models"
	id "gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
	"gatepass/pkg/platform/tx"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// PostgresEstateStore persists estates. It joins the transaction in ctx when present.
type PostgresEstateStore struct {
	db *sql.DB
}

func NewPostgresEstateStore(db *sql.DB) *PostgresEstateStore {
	return &PostgresEstateStore{db: db}
}

const estateColumns = `id, name, address, block_on_blacklist, pass_history_limit, created_at, updated_at`

func (s *PostgresEstateStore) Create(ctx context.Context, e *models.Estate) error {
	_, err := tx.Execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO estates (`+estateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID.String(), e.Name, e.Address, e.Policy.BlockOnBlacklist, e.Policy.PassHistoryLimit, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("estate name %q: %w", e.Name, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("insert estate: %w", err)
	}
	return nil
}

func (s *PostgresEstateStore) FindByID(ctx context.Context, estateID id.EstateID) (*models.Estate, error) {
	row := tx.Execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+estateColumns+` FROM estates WHERE id = $1`, estateID.String())
	e, err := scanEstate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("estate not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find estate: %w", err)
	}
	return e, nil
}

// Execute locks the estate row FOR UPDATE for the duration of validate and mutate.
// Without a transaction in ctx it opens its own.
func (s *PostgresEstateStore) Execute(ctx context.Context, estateID id.EstateID, validate func(*models.Estate) error, mutate func(*models.Estate)) (*models.Estate, error) {
	var out *models.Estate
	err := tx.NewSQLRunner(s.db).RunInTx(ctx, func(txCtx context.Context) error {
		exec := tx.Execer(txCtx, s.db)
		e, err := scanEstate(exec.QueryRowContext(txCtx,
			`SELECT `+estateColumns+` FROM estates WHERE id = $1 FOR UPDATE`, estateID.String()))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("estate not found: %w", sentinel.ErrNotFound)
			}
			return fmt.Errorf("lock estate: %w", err)
		}
		if err := validate(e); err != nil {
			return err
		}
		mutate(e)
		_, err = exec.ExecContext(txCtx, `
			UPDATE estates
			SET name = $2, address = $3, block_on_blacklist = $4, pass_history_limit = $5, updated_at = $6
			WHERE id = $1
		`, e.ID.String(), e.Name, e.Address, e.Policy.BlockOnBlacklist, e.Policy.PassHistoryLimit, e.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update estate: %w", err)
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func scanEstate(row *sql.Row) (*models.Estate, error) {
	var (
		e        models.Estate
		estateID string
	)
	if err := row.Scan(&estateID, &e.Name, &e.Address, &e.Policy.BlockOnBlacklist, &e.Policy.PassHistoryLimit, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if err := e.ID.UnmarshalText([]byte(estateID)); err != nil {
		return nil, fmt.Errorf("parse estate id: %w", err)
	}
	return &e, nil
}

type PostgresMemberStore struct {
	db *sql.DB
}

func NewPostgresMemberStore(db *sql.DB) *PostgresMemberStore {
	return &PostgresMemberStore{db: db}
}

const memberColumns = `estate_id, user_id, name, email, phone, role, unit_number, joined_at`

func (s *PostgresMemberStore) Add(ctx context.Context, m *models.Member) error {
	_, err := tx.Execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO estate_members (`+memberColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, m.EstateID.String(), m.UserID.String(), m.Name, m.Email, m.Phone, string(m.Role), m.UnitNumber, m.JoinedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("member %s: %w", m.UserID, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func (s *PostgresMemberStore) Find(ctx context.Context, estateID id.EstateID, userID id.UserID) (*models.Member, error) {
	rows, err := tx.Execer(ctx, s.db).QueryContext(ctx,
		`SELECT `+memberColumns+` FROM estate_members WHERE estate_id = $1 AND user_id = $2`,
		estateID.String(), userID.String())
	if err != nil {
		return nil, fmt.Errorf("find member: %w", err)
	}
	members, err := scanMembers(rows)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("member not found: %w", sentinel.ErrNotFound)
	}
	return members[0], nil
}

func (s *PostgresMemberStore) ListByEstate(ctx context.Context, estateID id.EstateID, role models.Role) ([]*models.Member, error) {
	rows, err := tx.Execer(ctx, s.db).QueryContext(ctx, `
		SELECT `+memberColumns+`
		FROM estate_members
		WHERE estate_id = $1 AND ($2 = '' OR role = $2)
		ORDER BY joined_at
	`, estateID.String(), string(role))
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return scanMembers(rows)
}

func scanMembers(rows *sql.Rows) ([]*models.Member, error) {
	defer rows.Close()
	out := make([]*models.Member, 0)
	for rows.Next() {
		var (
			m                models.Member
			estateID, userID string
			role             string
		)
		if err := rows.Scan(&estateID, &userID, &m.Name, &m.Email, &m.Phone, &role, &m.UnitNumber, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		if err := m.EstateID.UnmarshalText([]byte(estateID)); err != nil {
			return nil, fmt.Errorf("parse estate id: %w", err)
		}
		if err := m.UserID.UnmarshalText([]byte(userID)); err != nil {
			return nil, fmt.Errorf("parse user id: %w", err)
		}
		m.Role = models.Role(role)
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return out, nil
}
