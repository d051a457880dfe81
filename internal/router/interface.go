package router

import (
	"encoding/json"
	"sort"
)

// Kind enumerates the event types with built-in handling. Anything else is
// KindUnknown and takes the fallback branch.
type Kind int

const (
	KindUnknown Kind = iota
	KindDeploymentCreated
	KindDeploymentSucceeded
	KindDeploymentPromoted
	KindDeploymentError
	KindDeploymentCancelled
	KindProjectCreated
	KindProjectRemoved
	KindProjectRenamed
	KindDomainAdded
)

var kindNames = map[Kind]string{
	KindUnknown:             "unknown",
	KindDeploymentCreated:   "deployment.created",
	KindDeploymentSucceeded: "deployment.succeeded",
	KindDeploymentPromoted:  "deployment.promoted",
	KindDeploymentError:     "deployment.error",
	KindDeploymentCancelled: "deployment.cancelled",
	KindProjectCreated:      "project.created",
	KindProjectRemoved:      "project.removed",
	KindProjectRenamed:      "project.renamed",
	KindDomainAdded:         "domain.added",
}

var kindsByName = func() map[string]Kind {
	out := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		if k == KindUnknown {
			continue
		}
		out[name] = k
	}
	return out
}()

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// ParseKind maps an event type string to its Kind. Matching is exact.
func ParseKind(eventType string) Kind {
	if k, ok := kindsByName[eventType]; ok {
		return k
	}
	return KindUnknown
}

// KnownKinds returns every Kind except KindUnknown, in declaration order.
func KnownKinds() []Kind {
	out := make([]Kind, 0, len(kindsByName))
	for _, k := range kindsByName {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Outcome records which branch of Dispatch produced a Result.
type Outcome string

const (
	OutcomeHandled Outcome = "handled"
	OutcomeUnknown Outcome = "unknown"
	OutcomeFault   Outcome = "fault"
)

// Result is what a handler extracts from an event.
// It serializes flat: "message" alongside every Data key.
type Result struct {
	Message string
	Data    map[string]any

	// Set by the table, not by handlers.
	Outcome Outcome
	Fault   error
}

// Handler is a pure function over a normalized payload. Missing optional
// fields must not cause an error; substitute nil or "N/A" instead.
type Handler func(payload map[string]any) (Result, error)

func (r Result) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Data)+1)
	for k, v := range r.Data {
		out[k] = v
	}
	out["message"] = r.Message
	return json.Marshal(out)
}
