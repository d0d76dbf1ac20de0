package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cerebro-dash/apiserver/types"
	"github.com/lib/pq"
)

const metadataColumns = `account_id, username, category, tags, notes, created_at, updated_at`

// MetadataRepository persists account_meta rows in the dashboard database.
type MetadataRepository struct {
	db *sql.DB
}

func NewMetadataRepository(db *sql.DB) *MetadataRepository {
	return &MetadataRepository{db: db}
}

func scanMetadata(row rowScanner) (types.AccountMetadata, error) {
	var (
		meta     types.AccountMetadata
		category string
		tags     []string
	)
	if err := row.Scan(
		&meta.AccountID,
		&meta.Username,
		&category,
		pq.Array(&tags),
		&meta.Notes,
		&meta.CreatedAt,
		&meta.UpdatedAt,
	); err != nil {
		return types.AccountMetadata{}, err
	}
	meta.Category = types.Category(category)
	if !meta.Category.Valid() {
		meta.Category = types.CategoryUnknown
	}
	if tags == nil {
		tags = []string{}
	}
	meta.Tags = tags
	return meta, nil
}

// ListAll returns every metadata row keyed by account id.
func (r *MetadataRepository) ListAll(ctx context.Context) (map[int64]types.AccountMetadata, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+metadataColumns+` FROM account_meta`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metas := make(map[int64]types.AccountMetadata)
	for rows.Next() {
		meta, err := scanMetadata(rows)
		if err != nil {
			return nil, err
		}
		metas[meta.AccountID] = meta
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return metas, nil
}

func (r *MetadataRepository) Get(ctx context.Context, accountID int64) (types.AccountMetadata, error) {
	query := `SELECT ` + metadataColumns + ` FROM account_meta WHERE account_id = $1`
	meta, err := scanMetadata(r.db.QueryRowContext(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.AccountMetadata{}, ErrNotFound
		}
		return types.AccountMetadata{}, err
	}
	return meta, nil
}

// Insert creates a row. It returns ErrDuplicate if one already exists.
func (r *MetadataRepository) Insert(ctx context.Context, meta types.AccountMetadata) (types.AccountMetadata, error) {
	if !meta.Category.Valid() {
		meta.Category = types.CategoryUnknown
	}
	if meta.Tags == nil {
		meta.Tags = []string{}
	}

	query := `
		INSERT INTO account_meta (account_id, username, category, tags, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + metadataColumns
	inserted, err := scanMetadata(r.db.QueryRowContext(
		ctx,
		query,
		meta.AccountID,
		meta.Username,
		string(meta.Category),
		pq.Array(meta.Tags),
		meta.Notes,
	))
	if err != nil {
		if isDuplicate(err) {
			return types.AccountMetadata{}, ErrDuplicate
		}
		return types.AccountMetadata{}, err
	}
	return inserted, nil
}

// Update writes the fields present in update. An empty update returns the
// current row unchanged.
func (r *MetadataRepository) Update(ctx context.Context, accountID int64, update *MetadataUpdate) (types.AccountMetadata, error) {
	if update == nil || update.Empty() {
		return r.Get(ctx, accountID)
	}

	set, args, err := update.build(2)
	if err != nil {
		return types.AccountMetadata{}, err
	}
	query := `UPDATE account_meta SET ` + set + ` WHERE account_id = $1 RETURNING ` + metadataColumns

	meta, err := scanMetadata(r.db.QueryRowContext(ctx, query, append([]any{accountID}, args...)...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.AccountMetadata{}, ErrNotFound
		}
		return types.AccountMetadata{}, err
	}
	return meta, nil
}

func (r *MetadataRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
