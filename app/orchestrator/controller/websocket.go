package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/trustrails/payoutd/pkg/orchestrator"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to specific origins in production
		return true
	},
}

// ClientMessage represents messages sent by WebSocket clients.
type ClientMessage struct {
	Action   string `json:"action"`   // "subscribe" or "unsubscribe"
	TenantID string `json:"tenantId"` // tenant to follow, or "*" for all
}

// ServerMessage represents messages sent to WebSocket clients.
type ServerMessage struct {
	Type    string      `json:"type"` // "status", "subscribed", "unsubscribed", "error", "ping"
	Payload interface{} `json:"payload"`
}

type clientSubscriptions struct {
	mu      sync.RWMutex
	tenants map[string]bool
}

func newClientSubscriptions() *clientSubscriptions {
	return &clientSubscriptions{tenants: make(map[string]bool)}
}

func (cs *clientSubscriptions) Subscribe(tenantID string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.tenants[tenantID] = true
}

func (cs *clientSubscriptions) Unsubscribe(tenantID string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	delete(cs.tenants, tenantID)
}

func (cs *clientSubscriptions) IsSubscribed(tenantID string) bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	if cs.tenants["*"] {
		return true
	}
	return cs.tenants[tenantID]
}

// HandleWebSocket upgrades the connection and streams disbursement status
// transitions for the tenants the client subscribes to.
//
// Client sends: {"action": "subscribe", "tenantId": "acme"}
// Client sends: {"action": "subscribe", "tenantId": "*"}
// Server sends: {"type": "status", "payload": {...}} per transition.
func (c *Controller) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if c.App.RedisClient == nil {
		http.Error(w, "Real-time events not available (Redis disabled)", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.App.Logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	c.App.Logger.Info("WebSocket client connected", zap.String("remote_addr", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	subs := newClientSubscriptions()
	send := make(chan ServerMessage, 256)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				c.App.Logger.Error("Panic in redis subscriber goroutine",
					zap.Any("panic", rec),
					zap.String("stack", string(debug.Stack())))
				cancel()
			}
		}()
		c.forwardStatusEvents(ctx, send, subs)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		pingLoop(ctx, send, 30*time.Second)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		writeLoop(ctx, conn, cancel, send)
	}()

	// Read loop doubles as close detection; blocks until the peer goes away.
	c.readClientMessages(ctx, conn, cancel, subs, send)

	// send is never closed. Producers may still be mid-select when the read
	// loop returns, so every goroutine exits via ctx instead.
	cancel()
	wg.Wait()

	c.App.Logger.Info("WebSocket client disconnected", zap.String("remote_addr", r.RemoteAddr))
}

// messageWriter is the subset of *websocket.Conn the write loop needs.
type messageWriter interface {
	WriteJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
}

// pingLoop emits periodic keepalive pings. Pings are best-effort and dropped
// when the send buffer is full.
func pingLoop(ctx context.Context, send chan<- ServerMessage, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			select {
			case send <- ServerMessage{Type: "ping", Payload: map[string]int64{"timestamp": time.Now().Unix()}}:
			default:
			}
		case <-ctx.Done():
			return
		}
	}
}

// writeLoop is the sole writer on the connection. It drains send until the
// context ends or a write fails.
func writeLoop(ctx context.Context, conn messageWriter, cancel context.CancelFunc, send <-chan ServerMessage) {
	for {
		select {
		case msg := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				cancel()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// forwardStatusEvents subscribes to the status pattern and forwards events
// matching the client's tenant subscriptions.
func (c *Controller) forwardStatusEvents(ctx context.Context, send chan<- ServerMessage, subs *clientSubscriptions) {
	pubsub := c.App.RedisClient.PSubscribe(ctx, "payout:*:status")
	defer func() { _ = pubsub.Close() }()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				select {
				case send <- ServerMessage{Type: "error", Payload: map[string]string{"message": "event stream closed"}}:
				case <-ctx.Done():
				}
				return
			}
			var event orchestrator.StatusNotification
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				c.App.Logger.Warn("Malformed status event", zap.Error(err))
				continue
			}
			if !subs.IsSubscribed(event.TenantID) {
				continue
			}
			select {
			case send <- ServerMessage{Type: "status", Payload: event}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Controller) readClientMessages(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc, subs *clientSubscriptions, send chan<- ServerMessage) {
	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			cancel()
			return
		}
		switch msg.Action {
		case "subscribe":
			subs.Subscribe(msg.TenantID)
			select {
			case send <- ServerMessage{Type: "subscribed", Payload: map[string]string{"tenantId": msg.TenantID}}:
			case <-ctx.Done():
				return
			}
		case "unsubscribe":
			subs.Unsubscribe(msg.TenantID)
			select {
			case send <- ServerMessage{Type: "unsubscribed", Payload: map[string]string{"tenantId": msg.TenantID}}:
			case <-ctx.Done():
				return
			}
		default:
			select {
			case send <- ServerMessage{Type: "error", Payload: map[string]string{"message": "unknown action"}}:
			case <-ctx.Done():
				return
			}
		}
	}
}
