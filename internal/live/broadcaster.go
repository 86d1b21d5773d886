// Package live pushes job status to browsers over WebSocket.
package live

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-brief-automator/internal/pipeline"
	"github.com/JakeFAU/seo-brief-automator/internal/progress"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

// StatusSource supplies the snapshot sent to clients.
type StatusSource interface {
	Status() pipeline.StatusSnapshot
}

// Message is the JSON frame written to clients.
type Message struct {
	Type   string                  `json:"type"`
	Event  *EventView              `json:"event,omitempty"`
	Status pipeline.StatusSnapshot `json:"status"`
}

// EventView is the wire form of a progress event.
type EventView struct {
	RunID      string    `json:"run_id"`
	TS         time.Time `json:"ts"`
	Kind       string    `json:"kind"`
	Stage      int       `json:"stage,omitempty"`
	Step       string    `json:"step"`
	Progress   int       `json:"progress"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	ModelCalls int       `json:"model_calls"`
	Note       string    `json:"note,omitempty"`
}

// Broadcaster upgrades /ws requests and fans status frames out to every
// connected client. It is also a progress.Sink.
type Broadcaster struct {
	source   StatusSource
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

var _ progress.Sink = (*Broadcaster)(nil)

type client struct {
	conn *websocket.Conn
	send chan Message
	once sync.Once
}

// NewBroadcaster builds a Broadcaster. checkOrigin may be nil to accept any origin.
func NewBroadcaster(source StatusSource, checkOrigin func(*http.Request) bool, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Broadcaster{
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		logger:  logger,
		clients: map[*client]struct{}{},
	}
}

// ServeHTTP upgrades the connection and sends the current snapshot.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan Message, sendBuffer)}
	c.send <- Message{Type: "snapshot", Status: b.source.Status()}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = conn.Close()
		return
	}
	b.clients[c] = struct{}{}
	count := len(b.clients)
	b.mu.Unlock()
	b.logger.Debug("client connected", zap.Int("clients", count))

	go b.writeLoop(c)
	go b.readLoop(c)
}

// Consume implements progress.Sink by pushing one frame per event.
func (b *Broadcaster) Consume(ctx context.Context, batch []progress.Event) error {
	if len(batch) == 0 {
		return nil
	}
	status := b.source.Status()
	for _, evt := range batch {
		view := toView(evt)
		b.broadcast(Message{Type: "event", Event: &view, Status: status})
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// Close disconnects every client and refuses new ones.
func (b *Broadcaster) Close(context.Context) error {
	b.mu.Lock()
	b.closed = true
	clients := b.clients
	b.clients = map[*client]struct{}{}
	b.mu.Unlock()
	for c := range clients {
		c.stop()
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *Broadcaster) broadcast(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		select {
		case c.send <- msg:
		default:
			// Slow client; drop it rather than stall the hub.
			delete(b.clients, c)
			c.stop()
			b.logger.Warn("dropping slow websocket client")
		}
	}
}

func (b *Broadcaster) remove(c *client) {
	b.mu.Lock()
	delete(b.clients, c)
	count := len(b.clients)
	b.mu.Unlock()
	c.stop()
	b.logger.Debug("client disconnected", zap.Int("clients", count))
}

func (b *Broadcaster) readLoop(c *client) {
	defer b.remove(c)
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

func (b *Broadcaster) writeLoop(c *client) {
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
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				b.logger.Debug("websocket write failed", zap.Error(err))
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

func (c *client) stop() {
	c.once.Do(func() { close(c.send) })
}

func toView(evt progress.Event) EventView {
	return EventView{
		RunID:      evt.RunID,
		TS:         evt.TS,
		Kind:       string(evt.Kind),
		Stage:      evt.Stage,
		Step:       evt.Step,
		Progress:   evt.Progress,
		DurationMS: evt.Dur.Milliseconds(),
		ModelCalls: evt.ModelCalls,
		Note:       evt.Note,
	}
}
