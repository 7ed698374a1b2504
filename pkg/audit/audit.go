// Package audit publishes authentication events to a Kafka topic so that
// token issuance is traceable outside the service's own logs. Auditing is
// optional: a nil Service is a no-op sink.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventType identifies the auth action an event records.
type EventType string

const (
	EventDeviceFlowStarted EventType = "auth.device_flow.started"
	EventLoginCompleted    EventType = "auth.login.completed"
	EventLoginDenied       EventType = "auth.login.denied"
	EventTokenIssued       EventType = "auth.installation_token.issued"
	EventTokenRejected     EventType = "auth.installation_token.rejected"
)

// Event is one audit record. ID and Timestamp are filled in by Record.
type Event struct {
	ID             string            `json:"id"`
	Type           EventType         `json:"type"`
	Timestamp      time.Time         `json:"timestamp"`
	Actor          string            `json:"actor,omitempty"`
	InstallationID int64             `json:"installation_id,omitempty"`
	Details        map[string]string `json:"details,omitempty"`
}

// Config configures the Kafka sink.
type Config struct {
	Brokers []string
	Topic   string
}

// Service writes audit events. Events are published asynchronously; a
// delivery failure is logged and never blocks or fails the auth operation
// that produced it.
type Service struct {
	writer *kafka.Writer
	log    *zap.SugaredLogger

	mu     sync.Mutex
	closed bool
}

// NewService builds an audit service, or nil when no brokers are configured.
func NewService(cfg Config, log *zap.SugaredLogger) *Service {
	if len(cfg.Brokers) == 0 {
		return nil
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: time.Second,
		WriteTimeout: 10 * time.Second,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Warnw("Audit event delivery failed", "count", len(messages), "error", err)
			}
		},
	}
	return &Service{writer: writer, log: log}
}

// Record publishes one event. Safe on a nil receiver.
func (s *Service) Record(ctx context.Context, event Event) {
	if s == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = time.Now().UTC()

	raw, err := json.Marshal(event)
	if err != nil {
		s.log.Warnw("Failed to encode audit event", "type", string(event.Type), "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if err := s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Actor),
		Value: raw,
	}); err != nil {
		s.log.Warnw("Failed to queue audit event", "type", string(event.Type), "error", err)
	}
}

// Close flushes pending events and shuts the writer down. Safe on a nil
// receiver.
func (s *Service) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("failed to close audit writer: %w", err)
	}
	return nil
}
