package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func streamServer(t *testing.T, hub *StreamHub) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/stream", hub.ServeWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
}

func readFrame(t *testing.T, conn *websocket.Conn) (StreamMessage, Event) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	var event Event
	require.NoError(t, json.Unmarshal(msg.Event, &event))
	return msg, event
}

func TestStreamHubReplayAndLive(t *testing.T) {
	hub := NewStreamHub(4, zap.NewNop())
	t.Cleanup(hub.Close)
	url := streamServer(t, hub)
	ctx := context.Background()

	require.NoError(t, hub.PublishEvent(ctx, "moderation", &Event{Type: EventFlagged, RecordID: 1}))

	conn, _, err := websocket.DefaultDialer.Dial(url+"?since=0", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	msg, event := readFrame(t, conn)
	assert.EqualValues(t, 1, msg.Seq)
	assert.Equal(t, "moderation", msg.Topic)
	assert.Equal(t, EventFlagged, event.Type)

	require.NoError(t, hub.PublishEvent(ctx, "moderation", &Event{Type: EventApproved, RecordID: 2}))
	msg, event = readFrame(t, conn)
	assert.EqualValues(t, 2, msg.Seq)
	assert.Equal(t, EventApproved, event.Type)
	assert.EqualValues(t, 2, event.RecordID)
}

func TestStreamHubWithoutSinceSkipsBacklog(t *testing.T) {
	hub := NewStreamHub(4, zap.NewNop())
	t.Cleanup(hub.Close)
	url := streamServer(t, hub)
	ctx := context.Background()

	require.NoError(t, hub.PublishEvent(ctx, "moderation", &Event{Type: EventFlagged, RecordID: 1}))

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.PublishEvent(ctx, "moderation", &Event{Type: EventCancelled, RecordID: 3}))
	msg, event := readFrame(t, conn)
	assert.EqualValues(t, 2, msg.Seq)
	assert.Equal(t, EventCancelled, event.Type)
}

func TestStreamHubBadSince(t *testing.T) {
	hub := NewStreamHub(4, zap.NewNop())
	t.Cleanup(hub.Close)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/stream", hub.ServeWS)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stream?since=abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReplayBufferKeepsNewest(t *testing.T) {
	r := &replayBuffer{buf: make([]StreamMessage, 3)}
	for i := uint64(1); i <= 5; i++ {
		r.add(StreamMessage{Seq: i})
	}
	got := r.since(0)
	require.Len(t, got, 3)
	assert.EqualValues(t, 3, got[0].Seq)
	assert.EqualValues(t, 5, got[2].Seq)
	assert.Len(t, r.since(4), 1)
}

func TestStreamHubClosedRejectsEvents(t *testing.T) {
	hub := NewStreamHub(0, zap.NewNop())
	hub.Close()
	assert.Error(t, hub.PublishEvent(context.Background(), "moderation", &Event{}))
}
