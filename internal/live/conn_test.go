package live

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"union-live/internal/domain"
)

// wsServer runs a scripted hub endpoint. handle gets the 1-based
// connection number after the subscribe frame has been consumed.
func wsServer(t *testing.T, subscribe string, handle func(n int, ws *websocket.Conn)) string {
	t.Helper()
	var count int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		var env domain.Envelope
		if err := ws.ReadJSON(&env); err != nil {
			return
		}
		if env.Event != subscribe {
			t.Errorf("first frame = %q, want %q", env.Event, subscribe)
			return
		}
		handle(int(atomic.AddInt32(&count, 1)), ws)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func openTest(t *testing.T, url, subscribe string) chan any {
	t.Helper()
	events := make(chan any, 64)
	conn, err := Open(ConnConfig{
		URL:        url,
		Subscribe:  subscribe,
		OnEvent:    func(evt any) { events <- evt },
		MinBackoff: 20 * time.Millisecond,
		MaxBackoff: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(conn.Close)
	return events
}

func awaitEvent[T any](t *testing.T, ch chan any, what string) T {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case evt := <-ch:
			if v, ok := evt.(T); ok {
				return v
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %s", what)
			return zero
		}
	}
}

func sendEvent(t *testing.T, ws *websocket.Conn, event string, payload any) {
	t.Helper()
	env, err := domain.NewEnvelope(event, payload)
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.WriteJSON(env); err != nil {
		t.Logf("send %s: %v", event, err)
	}
}

func TestConnResubscribesAfterDrop(t *testing.T) {
	url := wsServer(t, domain.CmdSubscribeBar, func(n int, ws *websocket.Conn) {
		sendEvent(t, ws, domain.EvtBarInitialData, domain.BarInitialData{Open: n > 1})
		if n == 1 {
			return // first connection dies right after the snapshot
		}
		_, _, _ = ws.ReadMessage() // hold the second open until the client closes
	})
	events := openTest(t, url, domain.CmdSubscribeBar)

	first := awaitEvent[domain.BarInitialData](t, events, "first snapshot")
	if first.Open {
		t.Error("first snapshot should come from connection 1")
	}
	second := awaitEvent[domain.BarInitialData](t, events, "snapshot after reconnect")
	if !second.Open {
		t.Error("second snapshot should come from connection 2")
	}
}

func TestConnSkipsUnknownEvents(t *testing.T) {
	url := wsServer(t, domain.CmdSubscribeSwap, func(n int, ws *websocket.Conn) {
		if n > 1 {
			t.Error("unknown event must not cost the connection")
			return
		}
		if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"event":"someFutureEvent","payload":{}}`)); err != nil {
			return
		}
		sendEvent(t, ws, domain.EvtUpdateUserCount, domain.UpdateUserCount{UserCount: 3})
		_, _, _ = ws.ReadMessage()
	})
	events := openTest(t, url, domain.CmdSubscribeSwap)

	count := awaitEvent[domain.UpdateUserCount](t, events, "event after unknown one")
	if count.UserCount != 3 {
		t.Errorf("user count = %d, want 3", count.UserCount)
	}
}

func TestConnResyncsAfterBadPayload(t *testing.T) {
	url := wsServer(t, domain.CmdSubscribeBar, func(n int, ws *websocket.Conn) {
		if n == 1 {
			// open must be boolean; this forces a payload decode failure
			if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"event":"barOpenChanged","payload":{"open":"yes"}}`)); err != nil {
				return
			}
			// wait for the client to notice and drop us
			_, _, _ = ws.ReadMessage()
			return
		}
		sendEvent(t, ws, domain.EvtBarInitialData, domain.BarInitialData{Open: true})
		_, _, _ = ws.ReadMessage()
	})
	events := openTest(t, url, domain.CmdSubscribeBar)

	snap := awaitEvent[domain.BarInitialData](t, events, "snapshot after resync")
	if !snap.Open {
		t.Error("resync snapshot should come from the second connection")
	}
}

func TestSendBeforeConnect(t *testing.T) {
	conn, err := Open(ConnConfig{
		URL:        "ws://127.0.0.1:1/live",
		Subscribe:  domain.CmdSubscribeSwap,
		OnEvent:    func(any) {},
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if err := conn.Send(domain.CmdPerformSwap, domain.PerformSwap{FirstPairID: 1, SecondPairID: 2}); err != ErrNotConnected {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}
