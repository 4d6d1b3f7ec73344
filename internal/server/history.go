package server

import (
	"context"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/export"
	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/repository"
)

const historyWriteTimeout = 3 * time.Second

func (s *Server) newExportID() uuid.UUID {
	id, err := uuid.NewRandom()
	if err != nil {
		return uuid.Nil
	}
	return id
}

// recordExport stores the outcome of an export attempt. Failures are logged
// and never reach the caller.
func (s *Server) recordExport(ctx context.Context, id uuid.UUID, reference string, exp *export.Export, exportErr error) {
	if s.history == nil {
		return
	}

	rec := &repository.ExportRecord{
		ID:        id,
		Reference: strings.TrimSpace(reference),
		Status:    repository.ExportStatusOK,
		CreatedAt: s.timeNow().UTC(),
	}
	if exp != nil {
		rec.Filename = exp.Filename
		rec.RowCount = exp.Rows
	}
	if exportErr != nil {
		rec.Status = repository.ExportStatusFailed
		rec.Error = exportErr.Error()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyWriteTimeout)
	defer cancel()

	if err := s.history.Create(ctx, rec); err != nil {
		s.logger.Warn("recording export history",
			zap.String("export_id", id.String()),
			zap.String("reference", rec.Reference),
			zap.Error(err))
	}
}

func contentDisposition(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}
