// Package events publishes per-submission outcomes to Kafka so downstream
// consumers can follow ingestion without polling the store.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"barrel-market-api/internal/model"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer used by the publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ MessageWriter = (*kafka.Writer)(nil)

// OutcomeEvent is the wire form of a submission outcome.
type OutcomeEvent struct {
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Error      string    `json:"error,omitempty"`
	Text       string    `json:"text"`
	X          int       `json:"x"`
	Y          int       `json:"y"`
	Z          int       `json:"z"`
	RecordDate string    `json:"record_date,omitempty"`
	Name       string    `json:"name,omitempty"`
	ItemID     string    `json:"minecraft_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher writes OutcomeEvents keyed by coordinate triple.
type Publisher struct {
	w       MessageWriter
	log     *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewKafkaWriter returns an async writer for topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
	}
}

// NewPublisher wraps w.
func NewPublisher(w MessageWriter, log *slog.Logger) *Publisher {
	return &Publisher{
		w:       w,
		log:     log.With(slog.String("component", "events")),
		timeout: 5 * time.Second,
		now:     time.Now,
	}
}

// Report publishes o. Publishing errors are logged and never affect ingestion.
func (p *Publisher) Report(o model.Outcome) {
	ev := OutcomeEvent{
		Status:     string(o.Status),
		Reason:     string(o.Reason),
		Text:       o.Submission.Text,
		X:          o.Submission.X,
		Y:          o.Submission.Y,
		Z:          o.Submission.Z,
		OccurredAt: p.now().UTC(),
	}
	if o.Err != nil {
		ev.Error = o.Err.Error()
	}
	if o.Record != nil {
		ev.RecordDate = o.Record.RecordDate
		ev.Name = o.Record.Name
		ev.ItemID = o.Record.MinecraftID
	}

	value, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("marshal outcome event", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%d:%d:%d", ev.X, ev.Y, ev.Z)),
		Value: value,
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		p.log.Warn("publish outcome event", "error", err, "status", ev.Status)
	}
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}
