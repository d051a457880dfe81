package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuiltinHandlers(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		payload   map[string]any
		message   string
		want      map[string]any
	}{
		{
			name:      "project created flat",
			eventType: "project.created",
			payload:   map[string]any{"eventType": "project.created", "projectName": "demo"},
			message:   "Project created event processed",
			want:      map[string]any{"project": "demo"},
		},
		{
			name:      "project created nested",
			eventType: "project.created",
			payload:   map[string]any{"project": map[string]any{"name": "site"}},
			message:   "Project created event processed",
			want:      map[string]any{"project": "site"},
		},
		{
			name:      "project removed missing name",
			eventType: "project.removed",
			payload:   map[string]any{},
			message:   "Project removed event processed",
			want:      map[string]any{"project": nil},
		},
		{
			name:      "project renamed",
			eventType: "project.renamed",
			payload:   map[string]any{"project": map[string]any{"name": "new", "oldName": "old"}},
			message:   "Project renamed event processed",
			want:      map[string]any{"oldName": "old", "newName": "new"},
		},
		{
			name:      "deployment created flat demo shape",
			eventType: "deployment.created",
			payload:   map[string]any{"projectName": "demo", "repoBranch": "main"},
			message:   "Deployment created event processed",
			want:      map[string]any{"deployment": nil, "project": "demo", "branch": "main"},
		},
		{
			name:      "deployment succeeded nested",
			eventType: "deployment.succeeded",
			payload: map[string]any{"deployment": map[string]any{
				"url":           "https://demo.example.app",
				"buildDuration": 42,
			}},
			message: "Deployment succeeded event processed",
			want:    map[string]any{"deployment": "https://demo.example.app", "duration": 42},
		},
		{
			name:      "deployment error",
			eventType: "deployment.error",
			payload: map[string]any{"deployment": map[string]any{
				"url":          "https://x.example.app",
				"errorMessage": "build failed",
			}},
			message: "Deployment error event processed",
			want:    map[string]any{"deployment": "https://x.example.app", "error": "build failed"},
		},
		{
			name:      "deployment promoted with non-object deployment",
			eventType: "deployment.promoted",
			payload:   map[string]any{"deployment": "oops"},
			message:   "Deployment promoted event processed",
			want:      map[string]any{"deployment": nil},
		},
		{
			name:      "deployment cancelled flat",
			eventType: "deployment.cancelled",
			payload:   map[string]any{"deploymentUrl": "https://c.example.app"},
			message:   "Deployment cancelled event processed",
			want:      map[string]any{"deployment": "https://c.example.app"},
		},
		{
			name:      "domain added flat",
			eventType: "domain.added",
			payload:   map[string]any{"domainName": "example.com"},
			message:   "Domain added event processed",
			want:      map[string]any{"domain": "example.com", "project": NotAvailable},
		},
		{
			name:      "domain added nothing",
			eventType: "domain.added",
			payload:   map[string]any{},
			message:   "Domain added event processed",
			want:      map[string]any{"domain": NotAvailable, "project": NotAvailable},
		},
	}

	table := Default()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := table.Dispatch(tt.eventType, tt.payload)
			assert.Equal(t, OutcomeHandled, res.Outcome)
			assert.Equal(t, tt.message, res.Message)
			assert.Equal(t, tt.want, res.Data)
		})
	}
}

func TestBuiltinHandlersNilPayload(t *testing.T) {
	table := Default()
	for _, k := range KnownKinds() {
		res := table.Dispatch(k.String(), nil)
		assert.Equal(t, OutcomeHandled, res.Outcome, "kind %s", k)
	}
}
