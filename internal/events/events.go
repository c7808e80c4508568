// Package events publishes security-relevant audit events (registrations,
// logins, deletions, membership changes) to a message broker. Publishing is
// best-effort: a broker failure is logged and never surfaces to the request
// that triggered the event.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/identserv/identityd/config"
)

// Audit event kinds.
const (
	KindUserCreated   = "user.created"
	KindUserLogin     = "user.login"
	KindLoginFailed   = "user.login_failed"
	KindUserUpdated   = "user.updated"
	KindUserDeleted   = "user.deleted"
	KindMemberAdded   = "group.member_added"
	KindMemberRemoved = "group.member_removed"
	KindGrantAdded    = "group.grant_added"
	KindGrantRevoked  = "group.grant_revoked"
)

// Event is one audit record. Subject is the public id or name of the entity
// acted upon; internal surrogate ids never appear in events.
type Event struct {
	Kind    string            `json:"kind"`
	At      time.Time         `json:"at"`
	Subject string            `json:"subject"`
	Detail  map[string]string `json:"detail,omitempty"`
}

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations the publisher needs.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// Publisher emits audit events to a single channel. A nil Publisher is valid
// and drops every event, so callers never need to branch on whether auditing
// is configured.
type Publisher struct {
	backend Backend
	channel string
	logger  *slog.Logger
}

// NewPublisher wraps a backend. Pass the channel audit events belong on.
func NewPublisher(backend Backend, channel string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{backend: backend, channel: channel, logger: logger}
}

// NewFromConfig builds a Publisher for the configured backend. An empty
// backend name disables auditing and returns nil.
func NewFromConfig(ctx context.Context, cfg config.MQConfig, logger *slog.Logger) (*Publisher, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "rabbitmq":
		backend, err := NewRabbitMQBackend(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return NewPublisher(backend, cfg.Channel, logger), nil
	case "pubsub":
		backend, err := NewPubSubBackend(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		return NewPublisher(backend, cfg.Channel, logger), nil
	default:
		return nil, errors.New("unknown mq backend: " + cfg.Backend)
	}
}

// Emit publishes one event. Failures are logged, never returned.
func (p *Publisher) Emit(ctx context.Context, kind, subject string, detail map[string]string) {
	if p == nil {
		return
	}
	event := Event{Kind: kind, At: time.Now().UTC(), Subject: subject, Detail: detail}
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("marshal audit event", "kind", kind, "err", err)
		return
	}
	if _, err := p.backend.Publish(ctx, p.channel, data, map[string]string{"kind": kind}); err != nil {
		p.logger.Error("publish audit event", "kind", kind, "err", err)
	}
}

// Subscribe consumes audit events, for out-of-process consumers embedded in
// the same binary (tooling, tests).
func (p *Publisher) Subscribe(ctx context.Context, handler Handler) error {
	if p == nil {
		return nil
	}
	return p.backend.Subscribe(ctx, p.channel, handler)
}

// Close closes the underlying backend.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.backend.Close()
}
