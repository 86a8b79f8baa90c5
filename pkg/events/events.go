// Package events publishes document lifecycle notifications to NATS so
// downstream consumers (mailers, search indexers) learn about approvals and
// obsolescence without polling.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/noah-isme/arc-docs-api/pkg/config"
)

// Type names a lifecycle event. The value is appended to the subject prefix.
type Type string

const (
	DocumentCreated   Type = "document.created"
	DocumentSubmitted Type = "document.submitted"
	DocumentApproved  Type = "document.approved"
	DocumentRejected  Type = "document.rejected"
	DocumentWithdrawn Type = "document.withdrawn"
	DocumentObsoleted Type = "document.obsoleted"
)

// Event is the JSON body published for every lifecycle change.
type Event struct {
	ID             string                 `json:"id"`
	Type           Type                   `json:"type"`
	DocumentID     string                 `json:"documentId"`
	DocumentNumber string                 `json:"documentNumber,omitempty"`
	DepartmentID   string                 `json:"departmentId,omitempty"`
	ActorUserID    string                 `json:"actorUserId"`
	From           string                 `json:"from,omitempty"`
	To             string                 `json:"to,omitempty"`
	Data           map[string]interface{} `json:"data,omitempty"`
	OccurredAt     time.Time              `json:"occurredAt"`
}

// Publisher delivers events to a broker.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close()
}

// Subject builds the NATS subject for an event type.
func Subject(prefix string, t Type) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		return string(t)
	}
	return prefix + "." + string(t)
}

// NATSPublisher publishes events as core NATS messages.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	logger *zap.Logger
}

// NewNATSPublisher connects to NATS with reconnect handling.
func NewNATSPublisher(cfg config.NATSConfig, logger *zap.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := nats.Connect(
		cfg.URL,
		nats.Name("arc-docs-api"),
		nats.Timeout(2*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(60),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSPublisher{conn: conn, prefix: cfg.SubjectPrefix, logger: logger}, nil
}

// Publish marshals the event and publishes it on its subject.
func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	if p == nil || p.conn == nil {
		return fmt.Errorf("nats publisher not connected")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.Type, err)
	}
	subject := Subject(p.prefix, event.Type)
	if err := p.conn.Publish(subject, body); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Close flushes and closes the connection.
func (p *NATSPublisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.FlushTimeout(5 * time.Second); err != nil {
		p.logger.Warn("nats flush on close failed", zap.Error(err))
	}
	p.conn.Close()
}

// NopPublisher drops events; used when NATS is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close()                               {}
