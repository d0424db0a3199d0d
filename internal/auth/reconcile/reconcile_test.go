package reconcile

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkspot/pkg/requestcontext"
)

type countingCounter struct {
	orphaned  int
	published int
}

func (c *countingCounter) IncOrphaned()              { c.orphaned++ }
func (c *countingCounter) AddOrphansPublished(n int) { c.published += n }

type failingStore struct {
	*InMemoryStore
}

func (failingStore) Append(context.Context, Orphan) error {
	return errors.New("disk full")
}

func TestRecorder(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), at)
	ctx = requestcontext.WithRequestID(ctx, "req-1")

	t.Run("writes outbox entry, log line and counter", func(t *testing.T) {
		var buf bytes.Buffer
		store := NewInMemoryStore()
		counter := &countingCounter{}
		rec := NewRecorder(store,
			WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))),
			WithCounter(counter),
		)

		require.NoError(t, rec.RecordOrphan(ctx, "p-1", "a@x.com", errors.New("db down")))

		all := store.All()
		require.Len(t, all, 1)
		assert.Equal(t, "p-1", all[0].ProviderUserID)
		assert.Equal(t, "db down", all[0].Reason)
		assert.Equal(t, at, all[0].RecordedAt)
		assert.Equal(t, 1, counter.orphaned)
		assert.Contains(t, buf.String(), `"level":"ERROR"`)
		assert.Contains(t, buf.String(), `"provider_user_id":"p-1"`)
		assert.Contains(t, buf.String(), `"request_id":"req-1"`)
	})

	t.Run("still signals when the outbox write fails", func(t *testing.T) {
		var buf bytes.Buffer
		counter := &countingCounter{}
		rec := NewRecorder(failingStore{NewInMemoryStore()},
			WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))),
			WithCounter(counter),
		)

		err := rec.RecordOrphan(ctx, "p-2", "b@x.com", nil)
		require.Error(t, err)
		assert.Equal(t, 1, counter.orphaned)
		assert.Contains(t, buf.String(), `"outbox_written":false`)
	})
}

type deadlineStore struct {
	*InMemoryStore
	deadline time.Time
}

func (s *deadlineStore) Append(ctx context.Context, orphan Orphan) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.deadline, _ = ctx.Deadline()
	return s.InMemoryStore.Append(ctx, orphan)
}

func TestRecorder_WritesAfterRequestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := &deadlineStore{InMemoryStore: NewInMemoryStore()}
	rec := NewRecorder(store,
		WithLogger(slog.New(slog.DiscardHandler)),
		WithAppendTimeout(time.Minute),
	)

	require.NoError(t, rec.RecordOrphan(ctx, "p-3", "c@x.com", context.Canceled))

	require.Len(t, store.All(), 1)
	assert.WithinDuration(t, time.Now().Add(time.Minute), store.deadline, 5*time.Second)
}

type recordingPublisher struct {
	batches [][]Orphan
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, orphans []Orphan) error {
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, orphans)
	return nil
}

func seed(t *testing.T, store *InMemoryStore, n int) {
	t.Helper()
	base := time.Now()
	for i := range n {
		require.NoError(t, store.Append(context.Background(), Orphan{
			ID:             string(rune('a' + i)),
			ProviderUserID: "p",
			RecordedAt:     base.Add(time.Duration(i) * time.Second),
		}))
	}
}

func TestRelay_Drain(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	t.Run("publishes oldest first in batches and marks them", func(t *testing.T) {
		store := NewInMemoryStore()
		seed(t, store, 3)
		pub := &recordingPublisher{}
		counter := &countingCounter{}
		relay := NewRelay(store, pub, WithBatchSize(2), WithRelayLogger(logger), WithPublishCounter(counter))

		n, err := relay.Drain(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, "a", pub.batches[0][0].ID)

		n, err = relay.Drain(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = relay.Drain(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Equal(t, 3, counter.published)
	})

	t.Run("publish failure leaves entries pending", func(t *testing.T) {
		store := NewInMemoryStore()
		seed(t, store, 2)
		relay := NewRelay(store, &recordingPublisher{err: errors.New("broker down")}, WithRelayLogger(logger))

		_, err := relay.Drain(ctx)
		require.Error(t, err)

		pending, err := store.Pending(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, pending, 2)
	})
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	store := NewInMemoryStore()
	seed(t, store, 1)
	pub := &recordingPublisher{}
	relay := NewRelay(store, pub, WithInterval(10*time.Millisecond), WithRelayLogger(slog.New(slog.DiscardHandler)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool {
		pending, _ := store.Pending(context.Background(), 10)
		return len(pending) == 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}
