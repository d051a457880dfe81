package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/pagehooks/internal/log"
	"github.com/mattjoyce/pagehooks/internal/router"
	"github.com/mattjoyce/pagehooks/internal/webhook"
)

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*nats.Msg
	err  error
}

func (f *fakePublisher) PublishMsg(m *nats.Msg) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, m)
	return nil
}

func TestSubject(t *testing.T) {
	tests := []struct {
		prefix    string
		eventType string
		want      string
	}{
		{"pagehooks.events", "project.created", "pagehooks.events.project.created"},
		{"pagehooks.events.", "deployment.error", "pagehooks.events.deployment.error"},
		{"pagehooks", "", "pagehooks.unknown"},
		{"pagehooks", "   ", "pagehooks.unknown"},
		{"pagehooks", "a..b", "pagehooks.a._.b"},
		{"pagehooks", "evil.>", "pagehooks.evil._"},
		{"pagehooks", "x *y", "pagehooks.x__y"},
		{"", "project.created", "project.created"},
	}
	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			assert.Equal(t, tt.want, Subject(tt.prefix, tt.eventType))
		})
	}
}

func TestPublishDelivery(t *testing.T) {
	pub := &fakePublisher{}
	relay := New(pub, "pagehooks.events")

	d := webhook.Delivery{
		ID:           "evt-123",
		Endpoint:     "/webhooks/edgeone",
		EventType:    "project.created",
		Payload:      map[string]any{"projectName": "demo"},
		Result:       router.Result{Message: "Project created event processed", Data: map[string]any{"project": "demo"}},
		Verification: webhook.VerificationVerified,
		ReceivedAt:   time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, relay.Publish(context.Background(), d))

	require.Len(t, pub.msgs, 1)
	msg := pub.msgs[0]
	assert.Equal(t, "pagehooks.events.project.created", msg.Subject)
	assert.Equal(t, "evt-123", msg.Header.Get(HeaderMsgID))
	assert.Equal(t, "/webhooks/edgeone", msg.Header.Get(HeaderEndpoint))
	assert.Equal(t, "project.created", msg.Header.Get(HeaderEventType))

	var got map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "evt-123", got["id"])
	assert.Equal(t, "verified", got["verification"])
	assert.Equal(t, map[string]any{"message": "Project created event processed", "project": "demo"}, got["result"])
	assert.Equal(t, "2026-10-18T12:00:00Z", got["receivedAt"])
}

func TestPublishErrors(t *testing.T) {
	pub := &fakePublisher{err: nats.ErrConnectionClosed}
	relay := New(pub, "p")

	err := relay.Publish(context.Background(), webhook.Delivery{ID: "1", EventType: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, nats.ErrConnectionClosed))
	assert.Contains(t, err.Error(), "p.x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = New(&fakePublisher{}, "p").Publish(ctx, webhook.Delivery{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPublishUnencodablePayload(t *testing.T) {
	pub := &fakePublisher{}
	err := New(pub, "p").Publish(context.Background(), webhook.Delivery{
		ID:      "bad",
		Payload: map[string]any{"ch": make(chan int)},
	})
	require.Error(t, err)
	assert.Empty(t, pub.msgs)
}

func TestCloseWithoutConnection(t *testing.T) {
	assert.NoError(t, New(&fakePublisher{}, "p").Close())
}

func TestConnectFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "nats://127.0.0.1:1"
	cfg.Timeout = 500 * time.Millisecond

	_, err := Connect(cfg, log.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to NATS")
}
