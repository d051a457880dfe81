package router

import (
	"errors"
	"fmt"
)

// Messages of the fallback and fault results.
const (
	UnknownMessage = "unknown event type received"
	FaultMessage   = "error processing event"
)

// Table maps event kinds to handlers. It is built once and never mutated,
// so a single Table may be shared by every concurrent request.
type Table struct {
	handlers map[Kind]Handler
}

// NewTable copies handlers into a read-only Table.
func NewTable(handlers map[Kind]Handler) (*Table, error) {
	t := &Table{handlers: make(map[Kind]Handler, len(handlers))}
	for kind, h := range handlers {
		if kind == KindUnknown {
			return nil, fmt.Errorf("cannot register a handler for %q: unknown events use the fallback", kind)
		}
		if _, ok := kindNames[kind]; !ok {
			return nil, fmt.Errorf("cannot register a handler for undeclared kind %d", int(kind))
		}
		if h == nil {
			return nil, fmt.Errorf("handler for %q is nil", kind)
		}
		t.handlers[kind] = h
	}
	return t, nil
}

// Default returns a Table with the built-in handlers for every known kind.
func Default() *Table {
	t, err := NewTable(BuiltinHandlers())
	if err != nil {
		// Built-ins are static; this is a programming error.
		panic(err)
	}
	return t
}

// Handles reports whether kind has a registered handler.
func (t *Table) Handles(kind Kind) bool {
	_, ok := t.handlers[kind]
	return ok
}

// Dispatch runs the handler registered for eventType. It never fails:
// unregistered types yield the fallback Result and a failing handler yields
// a fault Result describing the error.
func (t *Table) Dispatch(eventType string, payload map[string]any) Result {
	h, ok := t.handlers[ParseKind(eventType)]
	if !ok {
		return Result{
			Message: UnknownMessage,
			Data: map[string]any{
				"eventType":       eventType,
				"receivedPayload": payload,
			},
			Outcome: OutcomeUnknown,
		}
	}
	return invoke(eventType, h, payload)
}

func invoke(eventType string, h Handler, payload map[string]any) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			var err error
			switch v := r.(type) {
			case error:
				err = v
			default:
				err = errors.New(fmt.Sprint(v))
			}
			res = faultResult(eventType, err)
		}
	}()

	out, err := h(payload)
	if err != nil {
		return faultResult(eventType, err)
	}
	out.Outcome = OutcomeHandled
	out.Fault = nil
	return out
}

func faultResult(eventType string, err error) Result {
	return Result{
		Message: FaultMessage,
		Data: map[string]any{
			"eventType": eventType,
			"error":     err.Error(),
		},
		Outcome: OutcomeFault,
		Fault:   err,
	}
}
