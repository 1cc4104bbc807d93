package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// StreamMessage is one frame on the operator notification stream
type StreamMessage struct {
	Seq   uint64          `json:"seq"`
	Topic string          `json:"topic"`
	Event json.RawMessage `json:"event"`
}

// replayBuffer holds the last N frames so reconnecting consoles can catch up
type replayBuffer struct {
	buf   []StreamMessage
	start int
	count int
}

func (r *replayBuffer) add(msg StreamMessage) {
	size := len(r.buf)
	idx := (r.start + r.count) % size
	if r.count == size {
		r.start = (r.start + 1) % size
		r.count--
	}
	r.buf[idx] = msg
	r.count++
}

func (r *replayBuffer) since(seq uint64) []StreamMessage {
	var out []StreamMessage
	for i := 0; i < r.count; i++ {
		msg := r.buf[(r.start+i)%len(r.buf)]
		if msg.Seq > seq {
			out = append(out, msg)
		}
	}
	return out
}

type streamClient struct {
	conn *websocket.Conn
	send chan StreamMessage
}

// StreamHub is a Publisher that pushes events to connected operator consoles
// over WebSocket. Slow clients are disconnected rather than waited for.
type StreamHub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*streamClient]struct{}
	replay  *replayBuffer
	nextSeq uint64
	closed  bool
}

func NewStreamHub(replaySize int, logger *zap.Logger) *StreamHub {
	if replaySize <= 0 {
		replaySize = 256
	}
	return &StreamHub{
		logger: logger.Named("stream"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*streamClient]struct{}),
		replay:  &replayBuffer{buf: make([]StreamMessage, replaySize)},
		nextSeq: 1,
	}
}

// PublishEvent implements Publisher
func (h *StreamHub) PublishEvent(_ context.Context, topic string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("stream hub closed")
	}
	msg := StreamMessage{Seq: h.nextSeq, Topic: topic, Event: data}
	h.nextSeq++
	h.replay.add(msg)
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("dropping slow stream client", zap.String("remote", c.conn.RemoteAddr().String()))
			h.removeLocked(c)
		}
	}
	return nil
}

// Clients reports the number of connected consoles
func (h *StreamHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request. ?since=<seq> replays buffered frames newer
// than seq before live ones.
func (h *StreamHub) ServeWS(c *gin.Context) {
	var since uint64
	raw, replay := c.GetQuery("since")
	if replay {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "since must be a non-negative integer"})
			return
		}
		since = v
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &streamClient{conn: conn, send: make(chan StreamMessage, 64)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	if replay {
		for _, msg := range h.replay.since(since) {
			select {
			case client.send <- msg:
			default:
			}
		}
	}
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	go h.writePump(client)
	go h.readPump(client)
}

func (h *StreamHub) removeLocked(c *streamClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *StreamHub) remove(c *streamClient) {
	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()
}

// readPump only services control frames; consoles never send data
func (h *StreamHub) readPump(c *streamClient) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *StreamHub) writePump(c *streamClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every console and rejects further events
func (h *StreamHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}
