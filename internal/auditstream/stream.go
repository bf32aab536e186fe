// Package auditstream mirrors every audit log entry onto a Kafka topic so
// downstream consumers (alerting, reporting) see access decisions as they
// happen.
package auditstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/BrandonDHaskell/Portaria/server/internal/logging"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store"
)

// MessageWriter is the subset of *kafka.Writer the stream needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter returns an async writer for topic. Async writes return
// immediately; delivery errors surface through the writer's logger.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *kafka.Writer {
	if logger == nil {
		logger = logging.Discard()
	}
	l := logger.With("svc", "auditstream")
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			l.Warn(fmt.Sprintf(msg, args...))
		}),
	}
}

// Event is the JSON body of each message.
type Event struct {
	OwnerID      *string `json:"owner_id,omitempty"`
	ScannerID    string  `json:"scanner_id"`
	Action       string  `json:"action"`
	Success      bool    `json:"success"`
	ErrorMessage string  `json:"error_message,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

// Store decorates an AuditLogStore: entries are written to the wrapped
// store first, then published. The payload itself is never published.
type Store struct {
	next   store.AuditLogStore
	w      MessageWriter
	logger *slog.Logger
}

func NewStore(next store.AuditLogStore, w MessageWriter, logger *slog.Logger) *Store {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Store{next: next, w: w, logger: logger.With("svc", "auditstream")}
}

func (s *Store) RecordEntry(ctx context.Context, e store.AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if err := s.next.RecordEntry(ctx, e); err != nil {
		return err
	}

	// Publishing is best-effort; the database row is the record.
	if err := s.publish(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "audit publish failed", "action", e.Action, "err", err)
	}
	return nil
}

func (s *Store) CountSince(ctx context.Context, since time.Time) (store.AuditCounts, error) {
	return s.next.CountSince(ctx, since)
}

func (s *Store) Close() error {
	return s.w.Close()
}

func (s *Store) publish(ctx context.Context, e store.AuditEntry) error {
	b, err := json.Marshal(Event{
		OwnerID:      e.OwnerID,
		ScannerID:    e.ScannerID,
		Action:       e.Action,
		Success:      e.Success,
		ErrorMessage: e.ErrorMessage,
		CreatedAt:    e.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	msg := kafka.Message{Value: b, Time: e.CreatedAt}
	if e.ScannerID != "" {
		msg.Key = []byte(e.ScannerID)
	}
	return s.w.WriteMessages(ctx, msg)
}
