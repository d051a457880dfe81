package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// UnknownEventType is used when a payload names no event type.
const UnknownEventType = "unknown"

// MaxSnippetChars bounds how much of a rejected body is echoed back.
const MaxSnippetChars = 200

// eventTypeFields are checked in order; the first non-empty string wins.
var eventTypeFields = []string{"eventType", "type", "event"}

// NormalizedEvent is a parsed webhook body. It is built once per request
// and not modified afterwards.
type NormalizedEvent struct {
	ID         string
	EventType  string
	Payload    map[string]any
	ReceivedAt time.Time
}

// ParseError reports a body that is not a JSON object.
type ParseError struct {
	// Snippet holds at most MaxSnippetChars characters of the raw body.
	Snippet string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid JSON payload: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Normalize parses raw as a JSON object and extracts its event type. A
// missing event type is not an error; the event becomes "unknown".
// Numbers are kept as json.Number so they pass through unchanged.
func Normalize(raw []byte, receivedAt time.Time) (NormalizedEvent, error) {
	payload, err := decodeObject(raw)
	if err != nil {
		return NormalizedEvent{}, &ParseError{Snippet: snippet(raw, MaxSnippetChars), Err: err}
	}

	return NormalizedEvent{
		ID:         uuid.NewString(),
		EventType:  extractEventType(payload),
		Payload:    payload,
		ReceivedAt: receivedAt.UTC(),
	}, nil
}

func decodeObject(raw []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.New("empty body")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, errors.New("payload must be a JSON object")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON object")
	}
	return payload, nil
}

func extractEventType(payload map[string]any) string {
	for _, field := range eventTypeFields {
		if s, ok := payload[field].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return UnknownEventType
}

// snippet returns the first n characters of raw. Invalid UTF-8 sequences
// are replaced so the result is always safe to serialize.
func snippet(raw []byte, n int) string {
	s := strings.ToValidUTF8(string(raw), string(utf8.RuneError))
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
