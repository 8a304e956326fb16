// Package realtime is the WebSocket transport of the named-event channel.
// Every connection gets a random session id; frames are JSON objects {"event": name, "data": payload}.
package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/trezcool/tutorias/core"
)

const (
	// EventError carries a failure back to the session that sent the faulty frame.
	EventError = "error"

	defaultWriteWait = 10 * time.Second
	defaultPongWait  = 60 * time.Second
	maxMessageSize   = 64 << 10
	sendBufferSize   = 32
	closeGracePeriod = time.Second
)

var (
	ErrSessionGone  = errors.New("session not connected")
	ErrSlowConsumer = errors.New("session send buffer full")
)

type (
	// Frame is an inbound event.
	Frame struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data,omitempty"`
	}

	outFrame struct {
		Event string      `json:"event"`
		Data  interface{} `json:"data,omitempty"`
	}

	// ErrorData is the payload of EventError.
	ErrorData struct {
		Event   string            `json:"evento,omitempty"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields,omitempty"`
	}

	Options struct {
		WriteWait time.Duration
		PongWait  time.Duration
		// CheckOrigin defaults to accepting every origin.
		CheckOrigin func(r *http.Request) bool
	}

	Hub struct {
		logger   core.Logger
		upgrader websocket.Upgrader
		opts     Options

		mu    sync.RWMutex
		conns map[string]*Conn
	}
)

var _ core.Notifier = (*Hub)(nil)

func NewHub(logger core.Logger, opts Options) *Hub {
	if opts.WriteWait <= 0 {
		opts.WriteWait = defaultWriteWait
	}
	if opts.PongWait <= 0 {
		opts.PongWait = defaultPongWait
	}
	if opts.CheckOrigin == nil {
		opts.CheckOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     opts.CheckOrigin,
		},
		opts:  opts,
		conns: make(map[string]*Conn),
	}
}

// Upgrade switches the request to the WebSocket protocol and registers the new session.
// On failure the upgrader has already replied to the client.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, errors.Wrap(err, "upgrading connection")
	}

	c := &Conn{
		ID:   uuid.NewString(),
		hub:  h,
		ws:   ws,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.conns[c.ID] = c
	h.mu.Unlock()

	go c.writePump()
	h.logger.Debug("session opened", map[string]interface{}{"session": c.ID, "remote": r.RemoteAddr})
	return c, nil
}

func (h *Hub) get(sessionID string) (*Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[sessionID]
	return c, ok
}

func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	if cur, ok := h.conns[c.ID]; ok && cur == c {
		delete(h.conns, c.ID)
	}
	h.mu.Unlock()
}

// Emit queues event on sessionID.
func (h *Hub) Emit(sessionID, event string, data interface{}) error {
	c, ok := h.get(sessionID)
	if !ok {
		return ErrSessionGone
	}
	return c.Emit(event, data)
}

// Disconnect closes sessionID. It reports whether the session was connected.
func (h *Hub) Disconnect(sessionID string) bool {
	c, ok := h.get(sessionID)
	if ok {
		c.Close()
	}
	return ok
}

// Len returns the number of open sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Shutdown closes every session.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.Close()
	}
}

// Conn is one live session.
type Conn struct {
	ID string

	hub  *Hub
	ws   *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once

	mu     sync.RWMutex
	userID int
}

// UserID returns the identity authenticated on the session, 0 if none.
func (c *Conn) UserID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Conn) SetUserID(id int) {
	c.mu.Lock()
	c.userID = id
	c.mu.Unlock()
}

// Emit queues an event. A session that cannot keep up is dropped.
func (c *Conn) Emit(event string, data interface{}) error {
	msg, err := json.Marshal(outFrame{Event: event, Data: data})
	if err != nil {
		return errors.Wrap(err, "encoding frame")
	}

	select {
	case <-c.done:
		return ErrSessionGone
	default:
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrSessionGone
	default:
		c.hub.logger.Warn("dropping slow session", map[string]interface{}{"session": c.ID, "event": event})
		c.Close()
		return ErrSlowConsumer
	}
}

// EmitError reports err to the session.
func (c *Conn) EmitError(data ErrorData) {
	_ = c.Emit(EventError, data)
}

// Close ends the session; ReadLoop returns shortly after.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.hub.unregister(c)
	})
}

// Done is closed once the session is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// ReadLoop reads frames until the session closes. onActivity runs on every inbound frame and pong.
// Undecodable frames are answered with EventError and skipped.
func (c *Conn) ReadLoop(onFrame func(Frame), onActivity func()) {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.hub.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		if onActivity != nil {
			onActivity()
		}
		return c.ws.SetReadDeadline(time.Now().Add(c.hub.opts.PongWait))
	})

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				select {
				case <-c.done:
				default:
					c.hub.logger.Debug("session read failed", map[string]interface{}{"session": c.ID, "error": err.Error()})
				}
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.hub.opts.PongWait))
		if onActivity != nil {
			onActivity()
		}

		var f Frame
		if err = json.Unmarshal(msg, &f); err != nil || f.Event == "" {
			c.EmitError(ErrorData{Message: "mensaje inválido"})
			continue
		}
		onFrame(f)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.hub.opts.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			deadline := time.Now().Add(closeGracePeriod)
			_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		}
	}
}

// flush writes what is still queued when the session closes.
func (c *Conn) flush() {
	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(closeGracePeriod))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}
