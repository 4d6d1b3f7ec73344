//go:generate mockgen -source ./exporter.go -destination=./mocks/exporter.go -package=mock_export
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/apperr"
	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/metrics"
	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/wms"
)

const (
	DefaultAccountCode = "8UNI48"
	DefaultWarehouse   = "PERTH"
)

type TokenSource interface {
	Token(ctx context.Context) (string, error)
	// Invalidate drops the cached token so the next Token call refreshes.
	Invalidate()
}

type OrderFetcher interface {
	FetchOrder(ctx context.Context, token, reference string) (*wms.Order, error)
}

type Options struct {
	AccountCode string
	Warehouse   string
}

type Exporter struct {
	tokens      TokenSource
	orders      OrderFetcher
	accountCode string
	warehouse   string
	logger      *zap.Logger
}

func New(tokens TokenSource, orders OrderFetcher, opts Options, logger *zap.Logger) *Exporter {
	if opts.AccountCode == "" {
		opts.AccountCode = DefaultAccountCode
	}
	if opts.Warehouse == "" {
		opts.Warehouse = DefaultWarehouse
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		tokens:      tokens,
		orders:      orders,
		accountCode: opts.AccountCode,
		warehouse:   opts.Warehouse,
		logger:      logger,
	}
}

// GetOrder fetches the order and returns it in the flattened export model
// without rendering CSV.
func (e *Exporter) GetOrder(ctx context.Context, reference string) (*OrderRecord, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, &apperr.ValidationError{Field: "reference", Message: "order reference is required"}
	}

	// Token errors are returned unwrapped so callers can tell a broken
	// integration apart from a missing order.
	token, err := e.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	order, err := e.orders.FetchOrder(ctx, token, reference)
	if err != nil {
		// A token revoked before its expiry must not be served again.
		var upstream *apperr.UpstreamFetchError
		if errors.As(err, &upstream) && upstream.StatusCode == http.StatusUnauthorized {
			e.logger.Warn("wms rejected access token, invalidating cache",
				zap.String("reference", reference))
			e.tokens.Invalidate()
		}
		return nil, err
	}

	return toRecord(order, e.accountCode, e.warehouse), nil
}

// ExportOrder renders the order as a Northline CSV named
// <reference>_export.csv. An order without line items is NotFoundError.
func (e *Exporter) ExportOrder(ctx context.Context, reference string) (*Export, error) {
	rec, err := e.GetOrder(ctx, reference)
	if err != nil {
		metrics.ExportsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	reference = strings.TrimSpace(reference)

	if len(rec.Items) == 0 {
		metrics.ExportsTotal.WithLabelValues("not_found").Inc()
		return nil, &apperr.NotFoundError{Resource: "order items", ID: reference}
	}

	rows := rec.Rows()
	data, err := writeCSV(rows)
	if err != nil {
		metrics.ExportsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("writing csv for %s: %w", reference, err)
	}

	metrics.ExportsTotal.WithLabelValues("ok").Inc()
	metrics.ExportRowsTotal.Add(float64(len(rows)))
	e.logger.Info("exported order",
		zap.String("reference", reference),
		zap.Int("items", len(rec.Items)),
		zap.Int("rows", len(rows)))

	return &Export{
		Reference: reference,
		Filename:  Filename(reference),
		Rows:      len(rows),
		Data:      data,
	}, nil
}

func Filename(reference string) string {
	return reference + "_export.csv"
}

func writeCSV(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true

	if err := w.Write(Header); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if len(row) != len(Header) {
			return nil, fmt.Errorf("row has %d columns, want %d", len(row), len(Header))
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
