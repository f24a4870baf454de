package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/lobby/internal/catalog"
)

// CatalogRepository implements catalog.Lookup over the catalog_entries table.
type CatalogRepository struct {
	db *pgxpool.Pool
}

// NewCatalogRepository creates a CatalogRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewCatalogRepository(db *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// Get returns the entries for ids in ascending id order. Unknown ids are omitted.
//
// Postcondition: Returns a possibly empty slice, or a non-nil error on query failure.
func (r *CatalogRepository) Get(ctx context.Context, ids []int64) ([]catalog.Entry, error) {
	if len(ids) == 0 {
		return []catalog.Entry{}, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, name, kind, description
		 FROM catalog_entries WHERE id = ANY($1)
		 ORDER BY id`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("querying catalog entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Entry, error) {
		var e catalog.Entry
		err := row.Scan(&e.ID, &e.Name, &e.Kind, &e.Description)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning catalog entries: %w", err)
	}
	return entries, nil
}

// Upsert inserts entries, replacing any existing rows with the same id, in one transaction.
//
// Precondition: every entry must pass Validate.
// Postcondition: Returns the number of rows written, or an error with nothing committed.
func (r *CatalogRepository) Upsert(ctx context.Context, entries []catalog.Entry) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return 0, fmt.Errorf("entry %d: %w", e.ID, err)
		}
		batch.Queue(
			`INSERT INTO catalog_entries (id, name, kind, description)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO UPDATE
			 SET name = EXCLUDED.name, kind = EXCLUDED.kind,
			     description = EXCLUDED.description, updated_at = NOW()`,
			e.ID, e.Name, e.Kind, e.Description,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("upserting catalog entries: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing catalog entries: %w", err)
	}
	return len(entries), nil
}

// Delete removes the entry with the given id.
//
// Postcondition: Returns true if a row was removed.
func (r *CatalogRepository) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM catalog_entries WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("deleting catalog entry: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
