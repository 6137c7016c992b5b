package client

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-erp-approvals/internal/repository"
)

// msgPublisher is the part of *nats.Conn the publisher needs.
type msgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NotificationPublisher publishes approval workflow events to NATS for the
// notifications service.
//
// Subject convention: <prefix>.<event_type>
// Event types: approval_submitted, approval_required, approval_approved,
// approval_rejected
//
// Publishing never fails the caller. Errors are logged and dropped so that a
// NATS outage cannot undo a committed approval.
type NotificationPublisher struct {
	conn   msgPublisher
	prefix string
	log    zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string         `json:"event_type"`
	ActorID      string         `json:"actor_id"`
	Recipients   []string       `json:"recipients"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	EntityType   string         `json:"entity_type"`
	EntityID     string         `json:"entity_id"`
	Status       string         `json:"status"`
	CurrentLevel int            `json:"current_level"`
	TotalLevels  int            `json:"total_levels"`
	IsActionable bool           `json:"is_actionable,omitempty"`
	Category     string         `json:"category"`
	OccurredAt   time.Time      `json:"occurred_at"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher. A nil conn disables
// publishing.
func NewNotificationPublisher(conn *nats.Conn, prefix string, log zerolog.Logger) *NotificationPublisher {
	p := &NotificationPublisher{prefix: strings.TrimSuffix(prefix, "."), log: log}
	if conn != nil {
		p.conn = conn
	}
	return p
}

// PublishApprovalEvent publishes one approval event.
func (p *NotificationPublisher) PublishApprovalEvent(ctx context.Context, eventType string, req *repository.ApprovalRequest, actorID string, recipients []string, payload map[string]any) {
	if p.conn == nil || req == nil {
		return
	}
	if len(recipients) == 0 {
		return
	}

	event := &NotificationEvent{
		EventType:    eventType,
		ActorID:      actorID,
		Recipients:   recipients,
		ResourceType: "approval_request",
		ResourceID:   req.ID,
		EntityType:   string(req.EntityType),
		EntityID:     req.EntityID,
		Status:       string(req.Status),
		CurrentLevel: req.CurrentLevel,
		TotalLevels:  req.TotalLevels,
		IsActionable: eventType == "approval_required",
		Category:     "approval",
		OccurredAt:   time.Now().UTC(),
		Payload:      payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := p.prefix + "." + eventType
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set("Content-Type", "application/json")
	if err := p.conn.PublishMsg(msg); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("approval_request_id", req.ID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("approval_request_id", req.ID).
		Int("recipients", len(recipients)).
		Msg("notification: event published")
}

// ConnectNATS dials NATS with reconnect logging. An empty url returns a nil
// connection, which disables publishing.
func ConnectNATS(url, name string, log zerolog.Logger) (*nats.Conn, error) {
	if strings.TrimSpace(url) == "" {
		return nil, nil
	}
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
}
