package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/auth-service/internal/core/domain"
	"github.com/arklim/auth-service/internal/core/port"
	"github.com/arklim/auth-service/internal/infra/config"
)

const schemaVersion = "1.0"

// Event types published by the service.
const (
	EventUserRegistered   = "auth.user.registered"
	EventSessionLoggedOut = "auth.session.logged_out"
	EventUserDeleted      = "auth.user.deleted"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type eventEnvelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Payload   any               `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if eventID == "" {
		eventID = uuid.NewString()
	}

	metadata := map[string]string{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	body, err := json.Marshal(eventEnvelope{
		EventID:   eventID,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(userID),
		Value: sarama.ByteEncoder(body),
	}

	select {
	case p.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishUserRegistered publishes auth.user.registered events.
func (p *EventPublisher) PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error {
	payload := struct {
		UserID       string    `json:"user_id"`
		Email        string    `json:"email"`
		Name         *string   `json:"name,omitempty"`
		RegisteredAt time.Time `json:"registered_at"`
	}{
		UserID:       event.UserID,
		Email:        event.Email,
		Name:         event.Name,
		RegisteredAt: event.RegisteredAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventUserRegistered, event.UserID, event.RegisteredAt, payload)
}

// PublishSessionLoggedOut publishes auth.session.logged_out events. Only token
// identifiers travel on the bus, never the tokens themselves.
func (p *EventPublisher) PublishSessionLoggedOut(ctx context.Context, event domain.SessionLoggedOutEvent) error {
	payload := struct {
		UserID     string    `json:"user_id"`
		AccessJTI  string    `json:"access_jti,omitempty"`
		RefreshJTI string    `json:"refresh_jti,omitempty"`
		LoggedOut  time.Time `json:"logged_out_at"`
	}{
		UserID:     event.UserID,
		AccessJTI:  event.AccessJTI,
		RefreshJTI: event.RefreshJTI,
		LoggedOut:  event.LoggedOut.UTC(),
	}

	return p.publish(ctx, event.EventID, EventSessionLoggedOut, event.UserID, event.LoggedOut, payload)
}

// PublishUserDeleted publishes auth.user.deleted events.
func (p *EventPublisher) PublishUserDeleted(ctx context.Context, event domain.UserDeletedEvent) error {
	payload := struct {
		UserID    string    `json:"user_id"`
		DeletedAt time.Time `json:"deleted_at"`
	}{
		UserID:    event.UserID,
		DeletedAt: event.DeletedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventUserDeleted, event.UserID, event.DeletedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
