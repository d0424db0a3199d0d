package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"parkspot/pkg/requestcontext"
)

type OrphanCounter interface {
	IncOrphaned()
}

// Recorder emits the compensating signal for a half-finished signup: an
// outbox entry, an ERROR log line and a counter increment.
type Recorder struct {
	store         Store
	logger        *slog.Logger
	counter       OrphanCounter
	appendTimeout time.Duration
}

type RecorderOption func(*Recorder)

func WithLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = logger
	}
}

func WithCounter(c OrphanCounter) RecorderOption {
	return func(r *Recorder) {
		r.counter = c
	}
}

// WithAppendTimeout bounds the outbox write, which runs detached from the
// request's cancellation.
func WithAppendTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		r.appendTimeout = d
	}
}

func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, logger: slog.Default(), appendTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecordOrphan never drops the signal: the log line and counter are emitted
// even when the outbox write fails, and that failure is returned. The write
// outlives a cancelled or timed-out request.
func (r *Recorder) RecordOrphan(ctx context.Context, providerUserID, email string, cause error) error {
	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}
	orphan := Orphan{
		ID:             uuid.NewString(),
		ProviderUserID: providerUserID,
		Email:          email,
		Reason:         reason,
		RecordedAt:     requestcontext.Now(ctx),
	}

	appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.appendTimeout)
	appendErr := r.store.Append(appendCtx, orphan)
	cancel()

	r.logger.ErrorContext(ctx, "orphaned provider identity",
		"provider_user_id", providerUserID,
		"orphan_id", orphan.ID,
		"reason", reason,
		"outbox_written", appendErr == nil,
		"request_id", requestcontext.RequestID(ctx),
	)
	if r.counter != nil {
		r.counter.IncOrphaned()
	}

	if appendErr != nil {
		return fmt.Errorf("record orphan %s: %w", providerUserID, appendErr)
	}
	return nil
}
