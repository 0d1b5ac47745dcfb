package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Gateway opcodes
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opResume         = 6
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatACK   = 11
)

// Intents the bot needs: guilds, guild messages, direct messages.
const gatewayIntents = 1 | (1 << 9) | (1 << 12)

type gatewayPayload struct {
	Op   int             `json:"op"`
	Data json.RawMessage `json:"d,omitempty"`
	Seq  *int64          `json:"s,omitempty"`
	Type string          `json:"t,omitempty"`
}

// InteractionHandler receives dispatched interactions. Handlers run on their
// own goroutine so a slow handler never stalls the read loop.
type InteractionHandler func(*Interaction)

// Gateway maintains the websocket session with the platform: identify,
// heartbeat, sequence tracking, resume on drop.
type Gateway struct {
	token   string
	urlFn   func(context.Context) (string, error)
	handler InteractionHandler
	log     *zap.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	seq       int64
	sessionID string
}

func NewGateway(token string, urlFn func(context.Context) (string, error), handler InteractionHandler, log *zap.Logger) *Gateway {
	return &Gateway{
		token:   token,
		urlFn:   urlFn,
		handler: handler,
		log:     log,
	}
}

// Run connects and serves the session until ctx is cancelled, reconnecting
// with backoff on drops.
func (g *Gateway) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := g.serve(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			g.log.Warn("Gateway session ended", zap.Error(err), zap.Duration("retry_in", backoff))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (g *Gateway) serve(ctx context.Context) error {
	url, err := g.urlFn(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve gateway url: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial gateway: %w", err)
	}
	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()
	defer conn.Close()

	// Unblock the read loop when the context is cancelled.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	// First frame must be HELLO with the heartbeat interval.
	var hello gatewayPayload
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("failed to read hello: %w", err)
	}
	if hello.Op != opHello {
		return fmt.Errorf("expected hello, got op %d", hello.Op)
	}
	var helloData struct {
		HeartbeatInterval int `json:"heartbeat_interval"`
	}
	if err := json.Unmarshal(hello.Data, &helloData); err != nil {
		return fmt.Errorf("failed to decode hello: %w", err)
	}

	if err := g.identify(); err != nil {
		return err
	}

	hbCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go g.heartbeatLoop(hbCtx, time.Duration(helloData.HeartbeatInterval)*time.Millisecond)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var p gatewayPayload
		if err := conn.ReadJSON(&p); err != nil {
			return fmt.Errorf("gateway read failed: %w", err)
		}

		switch p.Op {
		case opDispatch:
			if p.Seq != nil {
				g.mu.Lock()
				g.seq = *p.Seq
				g.mu.Unlock()
			}
			g.dispatch(p)
		case opHeartbeat:
			g.sendHeartbeat()
		case opReconnect:
			return fmt.Errorf("gateway requested reconnect")
		case opInvalidSession:
			g.mu.Lock()
			g.sessionID = ""
			g.seq = 0
			g.mu.Unlock()
			return fmt.Errorf("gateway invalidated session")
		case opHeartbeatACK:
			// nothing to do
		}
	}
}

func (g *Gateway) dispatch(p gatewayPayload) {
	switch p.Type {
	case "READY":
		var ready struct {
			SessionID string `json:"session_id"`
		}
		if err := json.Unmarshal(p.Data, &ready); err == nil {
			g.mu.Lock()
			g.sessionID = ready.SessionID
			g.mu.Unlock()
		}
		g.log.Info("Gateway ready", zap.String("session_id", g.sessionID))
	case "INTERACTION_CREATE":
		var inter Interaction
		if err := json.Unmarshal(p.Data, &inter); err != nil {
			g.log.Error("Failed to decode interaction", zap.Error(err))
			return
		}
		go g.handler(&inter)
	}
}

func (g *Gateway) identify() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	// Resume the previous session if we have one; otherwise identify fresh.
	if g.sessionID != "" {
		return g.conn.WriteJSON(map[string]interface{}{
			"op": opResume,
			"d": map[string]interface{}{
				"token":      g.token,
				"session_id": g.sessionID,
				"seq":        g.seq,
			},
		})
	}

	return g.conn.WriteJSON(map[string]interface{}{
		"op": opIdentify,
		"d": map[string]interface{}{
			"token":   g.token,
			"intents": gatewayIntents,
			"properties": map[string]string{
				"os":      "linux",
				"browser": "collabd",
				"device":  "collabd",
			},
		},
	})
}

func (g *Gateway) heartbeatLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.sendHeartbeat()
		}
	}
}

func (g *Gateway) sendHeartbeat() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn == nil {
		return
	}
	if err := g.conn.WriteJSON(map[string]interface{}{"op": opHeartbeat, "d": g.seq}); err != nil {
		g.log.Warn("Failed to send heartbeat", zap.Error(err))
	}
}
