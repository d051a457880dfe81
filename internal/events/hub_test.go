package events

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubRingBufferKeepsNewest(t *testing.T) {
	h := NewHub(3)
	for i := 0; i < 5; i++ {
		h.Publish("project.created", map[string]int{"n": i})
	}

	snap := h.SnapshotSince(0)
	require.Len(t, snap, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{snap[0].ID, snap[1].ID, snap[2].ID})
	assert.JSONEq(t, `{"n":4}`, string(snap[2].Data))
	assert.Equal(t, 3, h.Len())

	since := h.SnapshotSince(4)
	require.Len(t, since, 1)
	assert.Equal(t, int64(5), since[0].ID)
	assert.Empty(t, h.SnapshotSince(5))
}

func TestHubDefaultCapacity(t *testing.T) {
	h := NewHub(0)
	for i := 0; i < DefaultCapacity+10; i++ {
		h.Publish("x", nil)
	}
	assert.Equal(t, DefaultCapacity, h.Len())
}

func TestHubPublishUnencodableData(t *testing.T) {
	h := NewHub(1)
	h.Publish("x", map[string]any{"ch": make(chan int)})

	snap := h.SnapshotSince(0)
	require.Len(t, snap, 1)
	assert.Equal(t, "{}", string(snap[0].Data))
}

func TestHubSubscribe(t *testing.T) {
	h := NewHub(10)
	h.Publish("before", nil)

	ch, cancel := h.Subscribe()
	h.Publish("after", map[string]string{"k": "v"})

	select {
	case ev := <-ch:
		assert.Equal(t, "after", ev.Type)
		assert.Equal(t, int64(2), ev.ID)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	cancel()
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after cancel")
	cancel()
}

func TestHubConcurrentPublish(t *testing.T) {
	h := NewHub(1000)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				h.Publish("x", j)
			}
		}()
	}
	wg.Wait()

	snap := h.SnapshotSince(0)
	require.Len(t, snap, 500)
	for i := 1; i < len(snap); i++ {
		assert.Less(t, snap[i-1].ID, snap[i].ID)
	}
}

func TestHandlerSnapshot(t *testing.T) {
	h := NewHub(10)
	h.Publish("project.created", map[string]string{"project": "demo"})
	h.Publish("domain.added", map[string]string{"domain": "example.com"})

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/events?since=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Events []Event `json:"events"`
		Count  int     `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Events, 1)
	assert.Equal(t, "domain.added", body.Events[0].Type)
	assert.JSONEq(t, `{"domain":"example.com"}`, string(body.Events[0].Data))
}

func TestHandlerRejectsPost(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHub(1).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/debug/events", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandlerStream(t *testing.T) {
	h := NewHub(10)
	h.Publish("project.created", map[string]string{"project": "a"})
	h.Publish("project.removed", map[string]string{"project": "a"})

	ts := httptest.NewServer(h.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Last-Event-ID", "1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	first := readSSE(t, reader)
	assert.Equal(t, "2", first["id"])
	assert.Equal(t, "project.removed", first["event"])

	h.Publish("bad\nevent", map[string]string{"x": "y"})
	second := readSSE(t, reader)
	assert.Equal(t, "3", second["id"])
	assert.Equal(t, "bad event", second["event"])
	assert.JSONEq(t, `{"x":"y"}`, second["data"])
}

// readSSE reads one SSE frame, skipping comment lines.
func readSSE(t *testing.T, r *bufio.Reader) map[string]string {
	t.Helper()
	frame := map[string]string{}
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if line == "" {
			if len(frame) > 0 {
				return frame
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		k, v, _ := strings.Cut(line, ": ")
		frame[k] = v
	}
}

func TestParseEventID(t *testing.T) {
	assert.Equal(t, int64(0), parseEventID(""))
	assert.Equal(t, int64(0), parseEventID("abc"))
	assert.Equal(t, int64(0), parseEventID("-5"))
	assert.Equal(t, int64(42), parseEventID("42"))
}
