package webhook

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/mattjoyce/pagehooks/internal/router"
)

//go:generate mockgen -destination=mocks/mock_sink.go -package=mocks github.com/mattjoyce/pagehooks/internal/webhook Sink

// Sink receives every accepted event after dispatch. Implementations must be
// safe for concurrent use. A Sink error is logged and never changes the
// response sent to the caller.
type Sink interface {
	Publish(ctx context.Context, d Delivery) error
}

// Delivery is the record handed to sinks for one accepted request.
type Delivery struct {
	ID           string         `json:"id"`
	Endpoint     string         `json:"endpoint"`
	EventType    string         `json:"eventType"`
	Payload      map[string]any `json:"payload"`
	Result       router.Result  `json:"result"`
	Verification Verification   `json:"verification"`
	ReceivedAt   time.Time      `json:"receivedAt"`
}

// EndpointConfig defines a single webhook endpoint.
type EndpointConfig struct {
	// Path is the URL path for this webhook (e.g., "/webhooks/edgeone")
	Path string

	// Scheme is "hmac" or "bearer"
	Scheme string

	// Secret is the HMAC key or the expected bearer token. Empty means open mode.
	Secret string

	// SignatureHeader is the HTTP header carrying the hex HMAC (hmac scheme only)
	SignatureHeader string

	// Strict rejects failed verification with 401 instead of continuing
	Strict bool

	// Debug adds diagnostic fields to responses
	Debug bool

	// MaxBodySize is the maximum allowed request body size in bytes (default: 1MB)
	MaxBodySize int64
}

// InboundRequest is the transport-independent view of a webhook call.
// Header lookups are case-insensitive through http.Header.Get.
type InboundRequest struct {
	Method string
	Header http.Header
	Body   io.Reader
}

// Response is what the pipeline decided to send back.
type Response struct {
	Status int
	Header http.Header
	Body   any

	outcome string
}

// Verification records how a request's credential was treated.
type Verification string

const (
	VerificationOpen     Verification = "open"
	VerificationVerified Verification = "verified"
	VerificationFailed   Verification = "failed"
)

// Default values
const (
	DefaultMaxBodySize     = 1048576 // 1 MB
	DefaultSignatureHeader = "X-EdgeOne-Signature"

	SchemeHMAC   = "hmac"
	SchemeBearer = "bearer"
)
