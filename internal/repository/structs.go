package repository

import (
	"time"

	"github.com/google/uuid"
)

const (
	ExportStatusOK     = "ok"
	ExportStatusFailed = "failed"
)

// ExportRecord is one export attempt. Order contents are never stored.
type ExportRecord struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Reference string    `db:"reference" json:"reference"`
	Filename  string    `db:"filename" json:"filename"`
	RowCount  int       `db:"row_count" json:"row_count"`
	Status    string    `db:"status" json:"status"`
	Error     string    `db:"error" json:"error,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
