// Package relay forwards accepted webhook deliveries to a NATS subject tree.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mattjoyce/pagehooks/internal/webhook"
)

// Headers set on every relayed message. Nats-Msg-Id lets JetStream streams
// drop duplicates.
const (
	HeaderMsgID     = "Nats-Msg-Id"
	HeaderEndpoint  = "Pagehooks-Endpoint"
	HeaderEventType = "Pagehooks-Event-Type"
)

// Config holds NATS relay configuration.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// Name identifies the connection on the server.
	Name string

	// Token for token-based authentication (optional).
	Token string

	// SubjectPrefix is prepended to the event type, e.g. "pagehooks.events".
	SubjectPrefix string

	// MaxReconnects is the maximum number of reconnection attempts.
	// Use -1 for infinite reconnects.
	MaxReconnects int

	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "pagehooks",
		SubjectPrefix: "pagehooks.events",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// MsgPublisher is the part of *nats.Conn the relay needs.
type MsgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATS is a webhook.Sink that publishes each delivery as JSON.
type NATS struct {
	pub    MsgPublisher
	conn   *nats.Conn
	prefix string
}

var _ webhook.Sink = (*NATS)(nil)

// Connect dials the server described by cfg.
func Connect(cfg Config, logger *slog.Logger) (*NATS, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrlRedacted())
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	n := New(conn, cfg.SubjectPrefix)
	n.conn = conn
	return n, nil
}

// New wraps an existing publisher.
func New(pub MsgPublisher, subjectPrefix string) *NATS {
	return &NATS{pub: pub, prefix: subjectPrefix}
}

// Publish sends d to <prefix>.<eventType>.
func (n *NATS) Publish(ctx context.Context, d webhook.Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal delivery %s: %w", d.ID, err)
	}

	msg := nats.NewMsg(Subject(n.prefix, d.EventType))
	msg.Data = data
	msg.Header.Set(HeaderMsgID, d.ID)
	msg.Header.Set(HeaderEndpoint, d.Endpoint)
	msg.Header.Set(HeaderEventType, d.EventType)

	if err := n.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}

// Close drains the connection opened by Connect. It is a no-op for
// relays built with New.
func (n *NATS) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}

// Subject joins prefix and eventType into a valid NATS subject. Each
// event type token has wildcards and whitespace replaced, and empty tokens
// become "_".
func Subject(prefix, eventType string) string {
	if strings.TrimSpace(eventType) == "" {
		eventType = webhook.UnknownEventType
	}

	tokens := strings.Split(eventType, ".")
	for i, tok := range tokens {
		tok = strings.Map(func(r rune) rune {
			switch r {
			case '*', '>', ' ', '\t', '\r', '\n':
				return '_'
			}
			return r
		}, tok)
		if tok == "" {
			tok = "_"
		}
		tokens[i] = tok
	}

	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		return strings.Join(tokens, ".")
	}
	return prefix + "." + strings.Join(tokens, ".")
}
