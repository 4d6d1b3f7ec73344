package postgresql

import (
	"context"
	"strconv"

	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/repository"
)

const defaultListLimit = 50

type ExportRepo struct {
	db db.DB
}

func NewExportRepo(db db.DB) *ExportRepo {
	return &ExportRepo{db: db}
}

func (r *ExportRepo) Create(ctx context.Context, rec *repository.ExportRecord) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO exports (
            id, reference, filename, row_count, status, error, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, rec.ID, rec.Reference, rec.Filename, rec.RowCount, rec.Status, rec.Error, rec.CreatedAt)
	return err
}

// List returns the newest export attempts first. An empty reference lists
// every order.
func (r *ExportRepo) List(ctx context.Context, reference string, limit int) ([]*repository.ExportRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := "SELECT id, reference, filename, row_count, status, error, created_at FROM exports"
	args := []interface{}{}

	if reference != "" {
		query += " WHERE reference = $1"
		args = append(args, reference)
	}

	query += " ORDER BY created_at DESC"
	args = append(args, limit)
	query += " LIMIT $" + strconv.Itoa(len(args))

	var records []*repository.ExportRecord
	err := r.db.Select(ctx, &records, query, args...)
	return records, err
}
