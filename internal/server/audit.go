package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/kafka"
)

type AuditLogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Handler    string    `json:"handler"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	StatusCode int       `json:"status_code"`
	User       string    `json:"user,omitempty"`
	Reference  string    `json:"reference,omitempty"`
	ExportID   string    `json:"export_id,omitempty"`
	Bytes      int       `json:"bytes"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

func (e AuditLogEntry) fields() []zap.Field {
	return []zap.Field{
		zap.Time("timestamp", e.Timestamp),
		zap.String("handler", e.Handler),
		zap.String("method", e.Method),
		zap.String("path", e.Path),
		zap.Int("status", e.StatusCode),
		zap.String("user", e.User),
		zap.String("reference", e.Reference),
		zap.String("export_id", e.ExportID),
		zap.Int("bytes", e.Bytes),
		zap.Int64("duration_ms", e.DurationMs),
		zap.String("error", e.Error),
	}
}

// ProducerSink publishes a batch as JSON messages keyed by the order
// reference, in a single producer call.
type ProducerSink struct {
	producer kafka.Producer
	topic    string
}

func NewProducerSink(producer kafka.Producer, topic string) *ProducerSink {
	return &ProducerSink{producer: producer, topic: topic}
}

func (s *ProducerSink) Publish(ctx context.Context, batch []AuditLogEntry) error {
	var errs []error
	msgs := make([]kafka.Message, 0, len(batch))
	for _, entry := range batch {
		value, err := json.Marshal(entry)
		if err != nil {
			errs = append(errs, fmt.Errorf("marshal audit entry: %w", err))
			continue
		}
		msgs = append(msgs, kafka.Message{Key: []byte(entry.Reference), Value: value})
	}
	if len(msgs) > 0 {
		if err := s.producer.SendMessages(ctx, s.topic, msgs...); err != nil {
			errs = append(errs, fmt.Errorf("send %d audit entries: %w", len(msgs), err))
		}
	}
	return errors.Join(errs...)
}

type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(_ context.Context, batch []AuditLogEntry) error {
	for _, entry := range batch {
		s.logger.Info("audit", entry.fields()...)
	}
	return nil
}
