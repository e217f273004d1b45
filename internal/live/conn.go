package live

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"union-live/internal/common/logger"
	"union-live/internal/domain"
)

var ErrNotConnected = errors.New("not connected")

// ConnConfig binds one connection to one topic and one owner.
type ConnConfig struct {
	URL       string // ws:// or wss:// endpoint
	Subscribe string // domain.CmdSubscribeBar or domain.CmdSubscribeSwap
	Token     string // bearer token for the membership gate
	OnEvent   func(evt any)
	Logger    *logger.Logger

	// reconnect backoff; zero values take the defaults below
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

const (
	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
)

// Conn is the connection manager: it keeps one persistent channel open
// for its owner, subscribing on every (re)connect so the hub replays a
// fresh snapshot. Incremental events carry no sequence numbers, so a
// reconnecting replica must never trust continuity across the gap; the
// snapshot resets it wholesale.
//
// OnEvent is invoked from a single goroutine, in delivery order.
type Conn struct {
	cfg ConnConfig

	mu     sync.Mutex
	ws     *websocket.Conn
	closed bool
	done   chan struct{}
}

// Open starts the connect/read/reconnect loop. Close releases it; no
// subscription outlives the owner.
func Open(cfg ConnConfig) (*Conn, error) {
	if cfg.URL == "" || cfg.Subscribe == "" || cfg.OnEvent == nil {
		return nil, errors.New("conn config requires URL, Subscribe and OnEvent")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.New("live-conn")
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = defaultMinBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	c := &Conn{cfg: cfg, done: make(chan struct{})}
	go c.run()
	return c, nil
}

func (c *Conn) run() {
	backoff := c.cfg.MinBackoff
	for {
		ws, err := c.dial()
		if err != nil {
			c.cfg.Logger.Warn("dial_failed", map[string]any{"url": c.cfg.URL, "retry_in": backoff.String()})
			if !c.sleep(backoff) {
				return
			}
			backoff = min(backoff*2, c.cfg.MaxBackoff)
			continue
		}

		if !c.install(ws) {
			_ = ws.Close()
			return
		}
		if err := c.Send(c.cfg.Subscribe, nil); err != nil {
			c.cfg.Logger.Error("subscribe_failed", err, map[string]any{"topic": c.cfg.Subscribe})
			c.drop(ws)
			continue
		}
		backoff = c.cfg.MinBackoff

		c.readLoop(ws)
		c.drop(ws)
		if c.isClosed() {
			return
		}
		c.cfg.Logger.Warn("disconnected", map[string]any{"topic": c.cfg.Subscribe, "retry_in": backoff.String()})
		if !c.sleep(backoff) {
			return
		}
		backoff = min(backoff*2, c.cfg.MaxBackoff)
	}
}

func (c *Conn) dial() (*websocket.Conn, error) {
	hdr := http.Header{}
	if c.cfg.Token != "" {
		hdr.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	ws, _, err := websocket.DefaultDialer.Dial(c.cfg.URL, hdr)
	return ws, err
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.cfg.Logger.Error("bad_frame", err, nil)
			return
		}
		evt, err := env.Decode()
		if err != nil {
			if errors.Is(err, domain.ErrUnknownEvent) {
				// likely a newer hub; skipping is safe because any
				// reconnect replays a full snapshot anyway
				c.cfg.Logger.Warn("unknown_event", map[string]any{"event": env.Event})
				continue
			}
			// malformed payload: drop the channel and resync from snapshot
			c.cfg.Logger.Error("bad_payload", err, map[string]any{"event": env.Event})
			return
		}
		c.cfg.OnEvent(evt)
	}
}

// Send writes one outbound envelope. Fire-and-forget: any state change
// arrives later as a broadcast.
func (c *Conn) Send(event string, payload any) error {
	env, err := domain.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil || c.closed {
		return ErrNotConnected
	}
	return c.ws.WriteJSON(env)
}

// Close tears the connection down and stops reconnecting.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	ws := c.ws
	c.ws = nil
	close(c.done)
	c.mu.Unlock()
	if ws != nil {
		_ = ws.Close()
	}
}

func (c *Conn) install(ws *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.ws = ws
	return true
}

func (c *Conn) drop(ws *websocket.Conn) {
	_ = ws.Close()
	c.mu.Lock()
	if c.ws == ws {
		c.ws = nil
	}
	c.mu.Unlock()
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-c.done:
		return false
	}
}
