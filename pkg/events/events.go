package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/disrupton/collaborators/pkg/logger"
)

// Publisher is the analytics sink. Publishing is fire-and-forget from the
// caller's perspective: a failed publish is logged, never escalated, and must
// never fail the operation that produced the event.
type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Event subjects
const (
	AccessGranted = "access.granted"
	AccessRevoked = "access.revoked"
)

// AccessGrantedEvent is emitted once per grant actually created (not for
// idempotent replays), for the analytics pipeline.
type AccessGrantedEvent struct {
	GrantID        string     `json:"grant_id"`
	UserID         string     `json:"user_id"`
	CollaboratorID string     `json:"collaborator_id"`
	PaymentID      string     `json:"payment_id"`
	Price          float64    `json:"price"`
	Currency       string     `json:"currency"`
	GrantedAt      time.Time  `json:"granted_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

type AccessRevokedEvent struct {
	GrantID        string    `json:"grant_id"`
	UserID         string    `json:"user_id"`
	CollaboratorID string    `json:"collaborator_id"`
	RevokedAt      time.Time `json:"revoked_at"`
}
