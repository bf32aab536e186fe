package auditstream_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/Portaria/server/internal/auditstream"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store/memory"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestStore_WritesThenPublishes(t *testing.T) {
	mem := memory.NewAuditLogStore()
	w := &fakeWriter{}
	s := auditstream.NewStore(mem, w, nil)

	owner := "u1"
	at := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordEntry(context.Background(), store.AuditEntry{
		OwnerID:   &owner,
		ScannerID: "porter-1",
		Action:    "access_granted",
		Success:   true,
		Payload:   `{"h":"secret-ish"}`,
		CreatedAt: at,
	}))

	require.Len(t, mem.Entries(), 1)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("porter-1"), w.msgs[0].Key)

	var ev auditstream.Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, "access_granted", ev.Action)
	assert.True(t, ev.Success)
	require.NotNil(t, ev.OwnerID)
	assert.Equal(t, "u1", *ev.OwnerID)
	assert.Equal(t, "2026-03-10T14:00:00Z", ev.CreatedAt)
	assert.NotContains(t, string(w.msgs[0].Value), "secret-ish")
}

func TestStore_PublishFailureIsSwallowed(t *testing.T) {
	mem := memory.NewAuditLogStore()
	s := auditstream.NewStore(mem, &fakeWriter{err: errors.New("broker down")}, nil)

	err := s.RecordEntry(context.Background(), store.AuditEntry{Action: "access_denied"})
	assert.NoError(t, err)
	assert.Len(t, mem.Entries(), 1)
}

type failingAudit struct{ store.AuditLogStore }

func (failingAudit) RecordEntry(context.Context, store.AuditEntry) error {
	return errors.New("db down")
}

func TestStore_StoreFailureSkipsPublish(t *testing.T) {
	w := &fakeWriter{}
	s := auditstream.NewStore(failingAudit{}, w, nil)

	err := s.RecordEntry(context.Background(), store.AuditEntry{Action: "access_denied"})
	assert.Error(t, err)
	assert.Empty(t, w.msgs)
}

func TestStore_CountSinceAndClose(t *testing.T) {
	mem := memory.NewAuditLogStore()
	w := &fakeWriter{}
	s := auditstream.NewStore(mem, w, nil)
	ctx := context.Background()

	require.NoError(t, s.RecordEntry(ctx, store.AuditEntry{Action: "access_granted", Success: true}))

	c, err := s.CountSince(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, store.AuditCounts{Total: 1, Granted: 1, GrantedSelf: 1}, c)

	require.NoError(t, s.Close())
	assert.True(t, w.closed)
}

func TestNewWriter_Configured(t *testing.T) {
	w := auditstream.NewWriter([]string{"k1:9092"}, "portaria.access_logs", nil)
	assert.Equal(t, "portaria.access_logs", w.Topic)
	assert.True(t, w.Async)
	require.NoError(t, w.Close())
}
