package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cerebro-dash/apiserver/types"
)

// OperatorRepository handles persistence for dashboard operators.
type OperatorRepository struct {
	db *sql.DB
}

func NewOperatorRepository(db *sql.DB) *OperatorRepository {
	return &OperatorRepository{db: db}
}

func (r *OperatorRepository) GetByID(ctx context.Context, id int) (types.Operator, error) {
	const query = `
		SELECT id, username, password_hash, created_at, updated_at
		FROM operators
		WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *OperatorRepository) GetByUsername(ctx context.Context, username string) (types.Operator, error) {
	const query = `
		SELECT id, username, password_hash, created_at, updated_at
		FROM operators
		WHERE username = $1`
	return r.getOne(ctx, query, username)
}

func (r *OperatorRepository) getOne(ctx context.Context, query string, arg any) (types.Operator, error) {
	var operator types.Operator
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&operator.ID,
		&operator.Username,
		&operator.PasswordHash,
		&operator.CreatedAt,
		&operator.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Operator{}, ErrNotFound
		}
		return types.Operator{}, err
	}
	return operator, nil
}

func (r *OperatorRepository) Create(ctx context.Context, operator types.Operator) (types.Operator, error) {
	now := time.Now()
	operator.CreatedAt = now
	operator.UpdatedAt = now

	const query = `
		INSERT INTO operators (username, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		operator.Username,
		operator.PasswordHash,
		operator.CreatedAt,
		operator.UpdatedAt,
	).Scan(&operator.ID); err != nil {
		if isDuplicate(err) {
			return types.Operator{}, ErrDuplicate
		}
		return types.Operator{}, err
	}
	return operator, nil
}

func (r *OperatorRepository) UpdatePassword(ctx context.Context, id int, passwordHash string) error {
	const query = `
		UPDATE operators
		SET password_hash = $1,
			updated_at = $2
		WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, passwordHash, time.Now(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
