package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

// exchangeServer accepts a connection, expects the init message, sends
// the payloads and then drops the connection.
func exchangeServer(t *testing.T, wantInit string, payloads []string, conns *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		conns.Add(1)

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if wantInit != "" {
			_, msg, err := c.Read(ctx)
			if err != nil || string(msg) != wantInit {
				c.Close(websocket.StatusPolicyViolation, "bad init")
				return
			}
		}
		for _, p := range payloads {
			if err := c.Write(ctx, websocket.MessageText, []byte(p)); err != nil {
				return
			}
		}
		c.Close(websocket.StatusGoingAway, "bye")
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketSourceStoresAndReconnects(t *testing.T) {
	init := `{"event":"bts:subscribe","data":{"channel":"order_book_ethbtc"}}`
	var conns atomic.Int32
	srv := exchangeServer(t, init, []string{
		`{"event":"bts:subscription_succeeded","data":{}}`,
		`{"data":{"bids":[["bad","1"]],"asks":[]}}`,
		`{"event":"data","data":{"bids":[["0.05","3"]],"asks":[["0.06","4"]]}}`,
	}, &conns)
	defer srv.Close()

	st := newMemStore()
	dec, _ := NewDecoder(DecoderEnvelope)
	a := NewAdapter(AdapterConfig{
		Exchange:    "bitstamp",
		Decoder:     dec,
		InitMessage: []byte(init),
		Logger:      quiet,
	}, st)
	src := NewWebSocketSource(WebSocketConfig{
		URL:         wsURL(srv),
		BackoffBase: 10 * time.Millisecond,
		BackoffMax:  20 * time.Millisecond,
		Logger:      quiet,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, a) }()

	deadline := time.Now().Add(5 * time.Second)
	for conns.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("source did not reconnect, connections=%d", conns.Load())
		}
		time.Sleep(10 * time.Millisecond)
	}

	got, ok := st.get("bitstamp")
	if !ok {
		t.Fatal("no summary stored")
	}
	if got.Bids[0].Price != 0.05 || got.Asks[0].Price != 0.06 {
		t.Fatalf("unexpected summary: %+v", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestBackoffIsCapped(t *testing.T) {
	src := NewWebSocketSource(WebSocketConfig{
		BackoffBase: 100 * time.Millisecond,
		BackoffMax:  time.Second,
	})
	if d := src.backoff(1); d < 100*time.Millisecond || d >= 250*time.Millisecond {
		t.Fatalf("backoff(1) = %v", d)
	}
	if d := src.backoff(30); d < time.Second || d >= time.Second+150*time.Millisecond {
		t.Fatalf("backoff(30) = %v", d)
	}
}
