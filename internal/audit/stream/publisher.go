// Package stream mirrors recorded audit events to a Kafka topic for SIEM and
// analytics fan-out. The mirror is strictly best-effort: the durable record
// is the audit store, and a broker outage must never fail or slow a state
// transition.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"registra/internal/audit"
)

const defaultTopic = "registra.audit.events"

type Publisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

type Option func(*Publisher)

func WithTopic(topic string) Option {
	return func(p *Publisher) {
		if topic != "" {
			p.topic = topic
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// New connects to the brokers and ensures the audit topic exists. Returns an
// error only on misconfiguration; transient broker failures surface later as
// dropped (and logged) mirror writes.
func New(brokers []string, opts ...Option) (*Publisher, error) {
	p := &Publisher{topic: defaultTopic}
	for _, opt := range opts {
		opt(p)
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchMaxBytes(1<<20),
		kgo.RecordRetries(3),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	p.client = client

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	admin := kadm.NewClient(client)
	if _, err := admin.CreateTopic(ctx, 3, 1, nil, p.topic); err != nil {
		// Already-exists is the normal case after first boot.
		if p.logger != nil {
			p.logger.Debug("audit topic create", "topic", p.topic, "err", err)
		}
	}
	return p, nil
}

type wireEvent struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Severity     string         `json:"severity"`
	Actor        string         `json:"actor,omitempty"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Action       string         `json:"action"`
	Result       string         `json:"result"`
	Detail       map[string]any `json:"detail,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    string         `json:"created_at"`
}

// Publish mirrors one event. Keyed by resource ID so per-resource ordering
// survives partitioning. Errors are logged and dropped.
func (p *Publisher) Publish(ctx context.Context, event audit.Event) {
	payload, err := json.Marshal(wireEvent{
		ID:           event.ID.String(),
		Type:         string(event.Type),
		Severity:     string(event.Severity),
		Actor:        event.Actor,
		ResourceType: event.ResourceType,
		ResourceID:   event.ResourceID,
		Action:       event.Action,
		Result:       event.Result,
		Detail:       event.Detail,
		ErrorMessage: event.ErrorMessage,
		CreatedAt:    event.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		if p.logger != nil {
			p.logger.Error("marshal audit mirror event", "err", err)
		}
		return
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.ResourceID),
		Value: payload,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil && p.logger != nil {
			p.logger.Warn("audit mirror write dropped", "topic", p.topic, "err", err)
		}
	})
}

// Close flushes pending records and releases the client.
func (p *Publisher) Close(ctx context.Context) error {
	if err := p.client.Flush(ctx); err != nil {
		return err
	}
	p.client.Close()
	return nil
}
