package notification_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Aidin1998/txconsole/internal/notification"
	"github.com/Aidin1998/txconsole/pkg/models"
	"github.com/Aidin1998/txconsole/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []notification.Event
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, topic string, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, *event.(*notification.Event))
	return p.err
}

func (p *recordingPublisher) snapshot() []notification.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notification.Event(nil), p.events...)
}

func TestOperatorDirectoryFiltersByPermission(t *testing.T) {
	db := testutil.NewDB(t)
	require.NoError(t, db.Create(&[]models.Operator{
		{Email: "a@ops.test", Name: "A", Permissions: "transactions.read,transactions.moderate", Active: true},
		{Email: "b@ops.test", Name: "B", Permissions: "transactions.moderate_all", Active: true},
		{Email: "c@ops.test", Name: "C", Permissions: "transactions.moderate", Active: true},
	}).Error)
	require.NoError(t, db.Model(&models.Operator{}).Where("email = ?", "c@ops.test").Update("active", false).Error)

	ops, err := notification.NewOperatorDirectory(db).Recipients(context.Background(), "transactions.moderate")
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "a@ops.test", ops[0].Email)
}

func TestDispatcherFansOutToEveryPublisher(t *testing.T) {
	db := testutil.NewDB(t)
	require.NoError(t, db.Create(&models.Operator{Email: "a@ops.test", Name: "A", Permissions: "transactions.moderate", Active: true}).Error)

	healthy := &recordingPublisher{}
	broken := &recordingPublisher{err: fmt.Errorf("broker down")}
	d := notification.NewDispatcher([]notification.Publisher{broken, healthy}, notification.NewOperatorDirectory(db), zap.NewNop(), notification.Config{Topic: "moderation"})
	d.Start()

	reason := "velocity"
	d.Notify(context.Background(), notification.Event{Type: notification.EventFlagged, SourceKind: "WALLET_TRANSFER", RecordID: 4, Reason: &reason})
	d.Stop()

	events := healthy.snapshot()
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].ID)
	assert.False(t, events[0].Timestamp.IsZero())
	require.Len(t, events[0].Recipients, 1)
	assert.Equal(t, "a@ops.test", events[0].Recipients[0].Email)
	assert.Equal(t, []string{"moderation"}, healthy.topics)
	assert.Len(t, broken.snapshot(), 1, "a failing publisher does not stop the others")
}

func TestNotifyDropsWhenQueueFull(t *testing.T) {
	pub := &recordingPublisher{}
	d := notification.NewDispatcher([]notification.Publisher{pub}, nil, zap.NewNop(), notification.Config{QueueSize: 1})

	// workers are not started, so only the first event fits
	d.Notify(context.Background(), notification.Event{Type: notification.EventApproved, RecordID: 1})
	d.Notify(context.Background(), notification.Event{Type: notification.EventApproved, RecordID: 2})

	d.Start()
	d.Stop()
	events := pub.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, uint64(1), events[0].RecordID)
}

func TestWebhookPublisher(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "moderation", r.Header.Get("X-Event-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	pub := notification.NewWebhookPublisher(srv.URL, time.Second, zap.NewNop())
	err := pub.PublishEvent(context.Background(), "moderation", &notification.Event{ID: "e1", Type: notification.EventCancelled})
	require.NoError(t, err)
	assert.Equal(t, "moderation", got["topic"])
	assert.Equal(t, "txconsole", got["source"])

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()
	err = notification.NewWebhookPublisher(failing.URL, time.Second, zap.NewNop()).PublishEvent(context.Background(), "moderation", &notification.Event{})
	assert.Error(t, err)
}
