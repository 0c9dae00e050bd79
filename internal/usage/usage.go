// Package usage records AI usage entries off the request path. Recorder
// publishes entries on an in-process watermill topic; Sink consumes the topic
// and appends each entry to the store. Both sides are best-effort: failures
// are logged and never reach the caller.
package usage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/connectai-gateway/internal/domain"
	"github.com/tbourn/connectai-gateway/internal/observability"
)

// Topic carries JSON-encoded domain.UsageLog entries.
const Topic = "usage.logs"

// writeTimeout bounds a single store write, detached from any request.
const writeTimeout = 5 * time.Second

// Recorder publishes usage entries.
type Recorder struct {
	pub   message.Publisher
	topic string
}

// NewRecorder constructs a Recorder publishing on Topic.
func NewRecorder(pub message.Publisher) *Recorder {
	return &Recorder{pub: pub, topic: Topic}
}

// Record publishes entry. It never blocks on the store and never fails.
func (r *Recorder) Record(ctx context.Context, entry domain.UsageLog) {
	payload, err := json.Marshal(entry)
	if err != nil {
		log.Error().Err(err).Str("user_id", entry.UserID).Msg("usage entry not encodable")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(context.WithoutCancel(ctx))
	if err := r.pub.Publish(r.topic, msg); err != nil {
		log.Warn().Err(err).Str("user_id", entry.UserID).Msg("usage entry dropped")
	}
}

// UsageRepo defines the repository contract required by Sink.
type UsageRepo interface {
	InsertUsageLog(ctx context.Context, db *gorm.DB, entry *domain.UsageLog) error
}

// Sink persists published usage entries.
type Sink struct {
	DB    *gorm.DB
	Repo  UsageRepo
	sub   message.Subscriber
	topic string
	done  chan struct{}
}

// NewSink constructs a Sink reading Topic from sub.
func NewSink(db *gorm.DB, r UsageRepo, sub message.Subscriber) *Sink {
	return &Sink{DB: db, Repo: r, sub: sub, topic: Topic, done: make(chan struct{})}
}

// Start subscribes synchronously, so entries published after it returns are
// not lost, and consumes in the background until ctx ends or the subscriber
// closes.
func (s *Sink) Start(ctx context.Context) error {
	msgs, err := s.sub.Subscribe(ctx, s.topic)
	if err != nil {
		close(s.done)
		return err
	}
	go func() {
		defer close(s.done)
		for msg := range msgs {
			s.handle(msg)
		}
	}()
	return nil
}

// Done is closed once the consumer loop has exited.
func (s *Sink) Done() <-chan struct{} { return s.done }

// handle always acks: a failed write is logged, not redelivered.
func (s *Sink) handle(msg *message.Message) {
	defer msg.Ack()

	var entry domain.UsageLog
	if err := json.Unmarshal(msg.Payload, &entry); err != nil {
		log.Error().Err(err).Str("message_uuid", msg.UUID).Msg("malformed usage message")
		observability.UsageRecords.WithLabelValues("error").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(msg.Context()), writeTimeout)
	defer cancel()
	if err := s.Repo.InsertUsageLog(ctx, s.DB, &entry); err != nil {
		log.Warn().Err(err).
			Str("user_id", entry.UserID).
			Str("model", entry.ModelUsed).
			Bool("success", entry.Success).
			Msg("usage log write failed")
		observability.UsageRecords.WithLabelValues("error").Inc()
		return
	}
	observability.UsageRecords.WithLabelValues("ok").Inc()
}
