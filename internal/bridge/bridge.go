// Package bridge exposes a small part of the relay to browsers over a
// WebSocket: markdown preview requests going in and page-saved
// notifications coming out.
package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"folio/internal/relay"
)

const (
	// AddressMarkdown answers a JSON string of markdown with the rendered HTML.
	AddressMarkdown = "app.markdown"
	// TopicPageSaved carries a PageSaved event after each page update.
	TopicPageSaved = "page.saved"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
	maxFrame   = 1 << 20

	// maxInFlight bounds the relay requests a single socket may have open.
	maxInFlight = 4
)

// Frame is the JSON message exchanged with the browser.
type Frame struct {
	Type         string          `json:"type"`
	Address      string          `json:"address,omitempty"`
	ReplyAddress string          `json:"replyAddress,omitempty"`
	Body         json.RawMessage `json:"body,omitempty"`
	Message      string          `json:"message,omitempty"`
}

// PageSaved is published on TopicPageSaved.
type PageSaved struct {
	ID     int64  `json:"id"`
	Client string `json:"client"`
}

// PublishPageSaved announces that page id was saved by client.
func PublishPageSaved(ctx context.Context, r relay.Relay, id int64, client string) error {
	return r.Publish(ctx, TopicPageSaved, PageSaved{ID: id, Client: client})
}

// Bridge is an http.Handler upgrading requests to bridged WebSockets.
type Bridge struct {
	relay    relay.Relay
	upgrader websocket.Upgrader
	sub      *relay.Subscription

	mu    sync.Mutex
	conns map[*conn]struct{}
	wg    sync.WaitGroup
}

// New creates a bridge and starts forwarding page-saved events to its
// sockets.
func New(ctx context.Context, r relay.Relay) (*Bridge, error) {
	sub, err := r.Subscribe(ctx, TopicPageSaved)
	if err != nil {
		return nil, err
	}

	b := &Bridge{
		relay: r,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		sub:   sub,
		conns: make(map[*conn]struct{}),
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for body := range sub.C {
			b.broadcast(Frame{Type: "rec", Address: TopicPageSaved, Body: body})
		}
	}()
	return b, nil
}

func (b *Bridge) broadcast(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		slog.Error("encode bridge frame", "err", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.conns {
		c.enqueue(data)
	}
}

// ServeHTTP upgrades the request and serves the socket until it closes.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := &conn{
		ws:       ws,
		send:     make(chan []byte, sendBuffer),
		inFlight: make(chan struct{}, maxInFlight),
		done:     make(chan struct{}),
	}
	b.mu.Lock()
	b.conns[c] = struct{}{}
	b.mu.Unlock()
	slog.Debug("bridge client connected", "remote", r.RemoteAddr)

	go c.writeLoop()
	b.readLoop(r.Context(), c)

	b.mu.Lock()
	delete(b.conns, c)
	b.mu.Unlock()
	c.shutdown()
	slog.Debug("bridge client disconnected", "remote", r.RemoteAddr)
}

func (b *Bridge) readLoop(ctx context.Context, c *conn) {
	c.ws.SetReadLimit(maxFrame)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f Frame
		if err := c.ws.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("bridge read failed", "err", err)
			}
			return
		}

		switch {
		case f.Type == "ping":
		case f.Type == "register" && f.Address == TopicPageSaved:
		case f.Type == "send" && f.Address == AddressMarkdown:
			select {
			case c.inFlight <- struct{}{}:
				go func() {
					defer func() { <-c.inFlight }()
					b.forward(ctx, c, f)
				}()
			default:
				c.sendFrame(Frame{Type: "err", Address: f.ReplyAddress, Message: "busy"})
			}
		default:
			c.sendFrame(Frame{Type: "err", Address: f.Address, Message: "access_denied"})
		}
	}
}

func (b *Bridge) forward(ctx context.Context, c *conn, f Frame) {
	reply, err := b.relay.Request(ctx, f.Address, relay.Message{Body: f.Body})
	if err != nil {
		slog.Error("bridge request failed", "address", f.Address, "err", err)
		c.sendFrame(Frame{Type: "err", Address: f.ReplyAddress, Message: err.Error()})
		return
	}
	if f.ReplyAddress == "" {
		return
	}
	c.sendFrame(Frame{Type: "rec", Address: f.ReplyAddress, Body: reply})
}

// Close stops forwarding events and disconnects every socket.
func (b *Bridge) Close() {
	b.sub.Close()
	b.wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.conns {
		c.ws.Close()
	}
}

type conn struct {
	ws       *websocket.Conn
	send     chan []byte
	inFlight chan struct{}
	once     sync.Once
	done     chan struct{}
}

func (c *conn) sendFrame(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		slog.Error("encode bridge frame", "err", err)
		return
	}
	c.enqueue(data)
}

// enqueue never blocks; a client that cannot keep up is disconnected.
func (c *conn) enqueue(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		slog.Warn("bridge client too slow, closing")
		c.ws.Close()
	}
}

func (c *conn) shutdown() {
	c.once.Do(func() { close(c.done) })
}

// writeLoop is the only writer of the socket.
func (c *conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
