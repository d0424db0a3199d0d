package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

const DefaultTopic = "identity.orphans"

// Publisher delivers orphans to the reconciliation consumers.
type Publisher interface {
	Publish(ctx context.Context, orphans []Orphan) error
}

// KafkaPublisher writes one record per orphan keyed by provider user id.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, topic: topic}, nil
}

// EnsureTopic creates the topic if it does not exist yet.
func (p *KafkaPublisher) EnsureTopic(ctx context.Context, partitions int32, replication int16) error {
	adm := kadm.NewClient(p.client)
	resp, err := adm.CreateTopics(ctx, partitions, replication, nil, p.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", p.topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, orphans []Orphan) error {
	records := make([]*kgo.Record, 0, len(orphans))
	for _, o := range orphans {
		payload, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("marshal orphan %s: %w", o.ID, err)
		}
		records = append(records, &kgo.Record{
			Key:   []byte(o.ProviderUserID),
			Value: payload,
		})
	}
	if err := p.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce orphans: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}

type PublishCounter interface {
	AddOrphansPublished(n int)
}

// Relay drains the outbox on an interval. Delivery is at-least-once: an
// orphan is marked only after the publisher acknowledged it.
type Relay struct {
	store     Store
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	counter   PublishCounter
}

type RelayOption func(*Relay)

func WithInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithRelayLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithPublishCounter(c PublishCounter) RelayOption {
	return func(r *Relay) {
		r.counter = c
	}
}

func NewRelay(store Store, publisher Publisher, opts ...RelayOption) *Relay {
	r := &Relay{
		store:     store,
		publisher: publisher,
		interval:  5 * time.Second,
		batchSize: 100,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drains until ctx is cancelled. Individual drain failures are logged
// and retried on the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Drain(ctx); err != nil && ctx.Err() == nil {
				r.logger.ErrorContext(ctx, "orphan relay drain failed", "error", err)
			}
		}
	}
}

// Drain publishes one batch and returns how many orphans were marked.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	pending, err := r.store.Pending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}
	if err := r.publisher.Publish(ctx, pending); err != nil {
		return 0, err
	}

	marked := 0
	for _, o := range pending {
		if err := r.store.MarkPublished(ctx, o.ID); err != nil {
			r.logger.ErrorContext(ctx, "mark orphan published failed", "orphan_id", o.ID, "error", err)
			continue
		}
		marked++
	}
	if r.counter != nil {
		r.counter.AddOrphansPublished(marked)
	}
	r.logger.InfoContext(ctx, "relayed orphaned identities", "count", marked)
	return marked, nil
}
