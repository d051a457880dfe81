package webhook

import (
	"encoding/hex"
	"net/http"
	"sort"
	"time"

	"github.com/mattjoyce/pagehooks/internal/router"
	"github.com/zeebo/blake3"
)

// TimestampFormat is ISO-8601 in UTC with millisecond precision.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// ErrorKind classifies why a request did not produce a success envelope.
type ErrorKind int

const (
	MethodNotAllowed ErrorKind = iota + 1
	BodyReadError
	PayloadTooLarge
	BadPayload
	Unauthorized
	// HandlerFault never reaches the caller as an error; the router embeds
	// it in a 200 success envelope.
	HandlerFault
	InternalFault
)

type errorInfo struct {
	name    string
	status  int
	title   string
	message string
	// simple envelopes carry only error and message.
	simple bool
}

var errorInfos = map[ErrorKind]errorInfo{
	MethodNotAllowed: {"method_not_allowed", http.StatusMethodNotAllowed, "Method not allowed", "This endpoint only accepts GET and POST requests", true},
	BodyReadError:    {"body_read_error", http.StatusBadRequest, "Bad request", "Failed to read request body", false},
	PayloadTooLarge:  {"payload_too_large", http.StatusRequestEntityTooLarge, "Payload too large", "Request body exceeds the configured limit", false},
	BadPayload:       {"bad_payload", http.StatusBadRequest, "Bad request", "Invalid JSON payload", true},
	Unauthorized:     {"unauthorized", http.StatusUnauthorized, "Unauthorized", "Invalid webhook credentials", false},
	HandlerFault:     {"handler_fault", http.StatusOK, "Handler fault", router.FaultMessage, false},
	InternalFault:    {"internal_fault", http.StatusInternalServerError, "Internal server error", "An unexpected error occurred", false},
}

func (k ErrorKind) info() errorInfo {
	if s, ok := errorInfos[k]; ok {
		return s
	}
	return errorInfos[InternalFault]
}

// String is the snake_case name used in logs and metric labels.
func (k ErrorKind) String() string { return k.info().name }

// Status is the HTTP status code for k.
func (k ErrorKind) Status() int { return k.info().status }

// HealthResponse is returned for GET on a webhook endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Health is the static payload served without touching the pipeline.
var Health = HealthResponse{Status: "ok", Message: "Webhook endpoint is ready"}

// SuccessEnvelope is the body of every accepted request.
type SuccessEnvelope struct {
	Success   bool          `json:"success"`
	EventType string        `json:"eventType"`
	EventID   string        `json:"eventId"`
	Result    router.Result `json:"result"`
	Timestamp string        `json:"timestamp"`
	Debug     *Debug        `json:"debug,omitempty"`
}

// Debug is attached to success envelopes for endpoints with debug enabled.
// It describes the request and never carries credential values.
type Debug struct {
	BodyLength        int          `json:"bodyLength"`
	PayloadKeys       []string     `json:"payloadKeys"`
	CredentialPresent bool         `json:"credentialPresent"`
	Verification      Verification `json:"verification"`
	BodyDigest        string       `json:"bodyDigest"`
}

// ErrorEnvelope is the body of every rejected request. Simple envelopes
// (method and parse errors) leave Success and Timestamp unset.
type ErrorEnvelope struct {
	Success   *bool   `json:"success,omitempty"`
	Error     string  `json:"error"`
	Message   string  `json:"message"`
	Timestamp string  `json:"timestamp,omitempty"`
	Received  *string `json:"received,omitempty"`
	Detail    string  `json:"detail,omitempty"`
}

// Success builds the envelope for an accepted event. debug may be nil.
func Success(ev NormalizedEvent, result router.Result, at time.Time, debug *Debug) SuccessEnvelope {
	return SuccessEnvelope{
		Success:   true,
		EventType: ev.EventType,
		EventID:   ev.ID,
		Result:    result,
		Timestamp: formatTimestamp(at),
		Debug:     debug,
	}
}

// Failure builds the envelope for kind. Callers add Received or Detail
// where the kind allows it.
func Failure(kind ErrorKind, at time.Time) ErrorEnvelope {
	s := kind.info()
	env := ErrorEnvelope{
		Error:   s.title,
		Message: s.message,
	}
	if !s.simple {
		f := false
		env.Success = &f
		env.Timestamp = formatTimestamp(at)
	}
	return env
}

// UnauthorizedMessage names the credential that failed for scheme.
func UnauthorizedMessage(scheme string) string {
	switch scheme {
	case SchemeHMAC:
		return "Invalid webhook signature"
	case SchemeBearer:
		return "Invalid bearer token"
	default:
		return errorInfos[Unauthorized].message
	}
}

// NewDebug describes body and ev for a debug block.
func NewDebug(body []byte, ev NormalizedEvent, credentialPresent bool, v Verification) *Debug {
	keys := make([]string, 0, len(ev.Payload))
	for k := range ev.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sum := blake3.Sum256(body)
	return &Debug{
		BodyLength:        len(body),
		PayloadKeys:       keys,
		CredentialPresent: credentialPresent,
		Verification:      v,
		BodyDigest:        hex.EncodeToString(sum[:]),
	}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}
