// Package hub is the authoritative side of the live-sync protocol. It
// holds the real bar-order and swap-session state, serializes every
// write per topic, and broadcasts each committed change to all topic
// subscribers, the originator included. That echo is what lets every
// client replica converge without local coordination.
package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"union-live/internal/common/logger"
	"union-live/internal/domain"
)

const sendBuffer = 32

// session is one connected client.
type session struct {
	ws     *websocket.Conn
	member string
	admin  bool
	send   chan domain.Envelope
	done   chan struct{}
	once   sync.Once
}

func newSession(ws *websocket.Conn, member string, admin bool) *session {
	return &session{
		ws:     ws,
		member: member,
		admin:  admin,
		send:   make(chan domain.Envelope, sendBuffer),
		done:   make(chan struct{}),
	}
}

// enqueue never blocks a broadcasting topic. A subscriber too slow to
// drain its buffer is cut off; its reconnect snapshot resyncs it.
func (s *session) enqueue(env domain.Envelope) {
	select {
	case s.send <- env:
	case <-s.done:
	default:
		s.close()
	}
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.ws.Close()
	})
}

func (s *session) writeLoop() {
	for {
		select {
		case env := <-s.send:
			if err := s.ws.WriteJSON(env); err != nil {
				s.close()
				return
			}
		case <-s.done:
			return
		}
	}
}

type Hub struct {
	lg   *logger.Logger
	Bar  *BarTopic
	Swap *SwapTopic
}

func New(lg *logger.Logger, bar *BarTopic, swap *SwapTopic) *Hub {
	return &Hub{lg: lg, Bar: bar, Swap: swap}
}

// serve reads frames from one client until the connection drops. Every
// frame is validated at this boundary: an unknown event name or a
// payload that fails decoding closes the connection instead of letting a
// half-parsed value reach a handler.
func (h *Hub) serve(ctx context.Context, sess *session) {
	defer func() {
		h.Bar.Unsubscribe(sess)
		h.Swap.Leave(sess)
		sess.close()
	}()

	for {
		_, data, err := sess.ws.ReadMessage()
		if err != nil {
			return
		}
		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.lg.Warn("bad_frame", map[string]any{"member": sess.member})
			return
		}
		evt, err := env.Decode()
		if err != nil {
			h.lg.Warn("rejected_frame", map[string]any{"member": sess.member, "event": env.Event})
			return
		}

		switch e := evt.(type) {
		case domain.SubscribeBar:
			if !sess.admin {
				h.lg.Warn("subscribe_denied", map[string]any{"member": sess.member, "topic": env.Event})
				return
			}
			h.Bar.Subscribe(sess)
		case domain.SubscribeSwap:
			h.Swap.Subscribe(ctx, sess)
		case domain.MarkContentComplete, domain.MarkOrderPaid, domain.MarkOrderCompleted, domain.SetBarOpen:
			if !sess.admin {
				h.lg.Warn("command_denied", map[string]any{"member": sess.member, "event": env.Event})
				return
			}
			if err := h.Bar.Handle(ctx, e); err != nil {
				h.lg.Error("bar_command_failed", err, map[string]any{"event": env.Event})
			}
		case domain.PerformSwap:
			h.Swap.HandleSwap(ctx, sess, e)
		default:
			// a broadcast-only event arriving inbound is a protocol breach
			h.lg.Warn("unexpected_inbound", map[string]any{"member": sess.member, "event": env.Event})
			return
		}
	}
}
