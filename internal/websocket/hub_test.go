package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-username/logsgate/internal/models"
)

type received struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func startHub(t *testing.T, origins []string) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(HandleWebSocket(hub, origins))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	welcome := readMessage(t, conn)
	require.Equal(t, TypeConnection, welcome.Type)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg received
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func sendControl(t *testing.T, conn *websocket.Conn, msg models.StreamMessage) received {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
	reply := readMessage(t, conn)
	require.Equal(t, TypeStatus, reply.Type)
	return reply
}

func record(level, trace string) *models.LogRecord {
	return &models.LogRecord{
		Level:      level,
		Message:    "Failed to connect to DB",
		ResourceID: "server-1234",
		Timestamp:  "2023-09-15T08:00:00Z",
		TraceID:    trace,
		SpanID:     "span-456",
		Commit:     "5e5342f",
		Metadata:   models.Metadata{ParentResourceID: "server-0987"},
	}
}

func TestHubStreamsLogs(t *testing.T) {
	hub, srv := startHub(t, nil)
	conn := dial(t, srv)
	require.Equal(t, 1, hub.GetConnectedClients())

	hub.BroadcastLog(record("error", "abc-xyz-123"))

	msg := readMessage(t, conn)
	assert.Equal(t, TypeLog, msg.Type)

	var got models.LogRecord
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "abc-xyz-123", got.TraceID)
	assert.Equal(t, "server-0987", got.Metadata.ParentResourceID)
}

func TestHubAppliesClientFilters(t *testing.T) {
	hub, srv := startHub(t, nil)
	conn := dial(t, srv)

	reply := sendControl(t, conn, models.StreamMessage{
		Type:    "filter",
		Filters: []models.StreamFilter{{Field: "level", Value: "error"}},
	})
	assert.Contains(t, string(reply.Data), "filters_updated")

	hub.BroadcastLog(record("info", "skipped"))
	hub.BroadcastLog(record("ERROR", "kept"))

	msg := readMessage(t, conn)
	var got models.LogRecord
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "kept", got.TraceID)
}

func TestHubPauseAndResume(t *testing.T) {
	hub, srv := startHub(t, nil)
	conn := dial(t, srv)

	sendControl(t, conn, models.StreamMessage{Type: "pause"})
	hub.BroadcastLog(record("error", "while-paused"))
	// submissions ignore pause and are dispatched in order, so seeing this
	// one means the paused record was already skipped
	hub.BroadcastSubmission(models.Submission{ID: "marker"})
	assert.Equal(t, TypeSubmission, readMessage(t, conn).Type)

	sendControl(t, conn, models.StreamMessage{Type: "resume"})
	hub.BroadcastLog(record("error", "after-resume"))

	msg := readMessage(t, conn)
	var got models.LogRecord
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "after-resume", got.TraceID)
}

func TestHubPing(t *testing.T) {
	_, srv := startHub(t, nil)
	conn := dial(t, srv)

	reply := sendControl(t, conn, models.StreamMessage{Type: "ping"})
	assert.Contains(t, string(reply.Data), "pong")
}

func TestHubStreamsSubmissionsRegardlessOfFilters(t *testing.T) {
	hub, srv := startHub(t, nil)
	conn := dial(t, srv)

	sendControl(t, conn, models.StreamMessage{
		Type:    "filter",
		Filters: []models.StreamFilter{{Field: "traceId", Value: "nothing-matches"}},
	})

	hub.BroadcastSubmission(models.Submission{ID: "sub-1", Status: models.SubmissionSucceeded, Records: 2, Indexed: 2})

	msg := readMessage(t, conn)
	assert.Equal(t, TypeSubmission, msg.Type)

	var got models.Submission
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "sub-1", got.ID)
	assert.Equal(t, 2, got.Indexed)
}

func TestHubBroadcastWithoutClients(t *testing.T) {
	hub := NewHub()
	// Run is not started; publishing must not block
	hub.BroadcastLog(record("error", "t"))
	hub.BroadcastSubmission(models.Submission{ID: "x"})
	assert.Equal(t, 0, hub.GetConnectedClients())
}

func TestHandleWebSocketRejectsForeignOrigin(t *testing.T) {
	_, srv := startHub(t, []string{"http://localhost:3000"})
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "http://localhost:3000")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}

func TestMatchFilter(t *testing.T) {
	rec := record("warning", "abc")
	tests := []struct {
		filter models.StreamFilter
		want   bool
	}{
		{models.StreamFilter{Field: "level", Value: "WARNING"}, true},
		{models.StreamFilter{Field: "resourceId", Value: "server-1234"}, true},
		{models.StreamFilter{Field: "resourceId", Value: "server-1"}, false},
		{models.StreamFilter{Field: "message", Value: "connect"}, true},
		{models.StreamFilter{Field: "parentResourceId", Value: "server-0987"}, true},
		{models.StreamFilter{Field: "unknown", Value: "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.filter.Field+"="+tt.filter.Value, func(t *testing.T) {
			assert.Equal(t, tt.want, matchFilter(rec, tt.filter))
		})
	}
}
