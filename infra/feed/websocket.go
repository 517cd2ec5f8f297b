package feed

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"nhooyr.io/websocket"
)

const (
	defaultDialTimeout  = 10 * time.Second
	defaultReadTimeout  = 30 * time.Second
	defaultPingInterval = 15 * time.Second
	defaultPingTimeout  = 5 * time.Second
	defaultWriteTimeout = 5 * time.Second
	defaultReadLimit    = 1 << 20

	defaultBackoffBase = 250 * time.Millisecond
	defaultBackoffMax  = 8 * time.Second

	closeReasonDone  = "done"
	closeReasonRetry = "reconnect"
)

// WebSocketConfig tunes a WebSocketSource. Zero values take defaults.
type WebSocketConfig struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	PingInterval time.Duration
	ReadLimit    int64
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	Logger       *log.Logger
}

// WebSocketSource reads one exchange's websocket feed and reconnects
// with jittered exponential backoff until its context is done.
type WebSocketSource struct {
	cfg WebSocketConfig
	rng *rand.Rand
}

func NewWebSocketSource(cfg WebSocketConfig) *WebSocketSource {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.ReadLimit == 0 {
		cfg.ReadLimit = defaultReadLimit
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.BackoffMax == 0 {
		cfg.BackoffMax = defaultBackoffMax
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &WebSocketSource{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run blocks until ctx is done and returns ctx.Err().
func (s *WebSocketSource) Run(ctx context.Context, h Handler) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, err := s.dial(ctx, attempt)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.cfg.Logger.Printf("[feed] %s: %v", h.Exchange(), err)
			attempt++
			continue
		}
		attempt = 0

		err = s.serve(ctx, conn, h)
		if ctx.Err() != nil {
			_ = conn.Close(websocket.StatusNormalClosure, closeReasonDone)
			return ctx.Err()
		}
		_ = conn.Close(websocket.StatusNormalClosure, closeReasonRetry)
		s.cfg.Logger.Printf("[feed] %s: connection lost: %v; reconnecting", h.Exchange(), err)
		attempt++
	}
}

func (s *WebSocketSource) dial(ctx context.Context, attempt int) (*websocket.Conn, error) {
	if attempt > 0 {
		timer := time.NewTimer(s.backoff(attempt))
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, s.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}
	conn.SetReadLimit(s.cfg.ReadLimit)
	return conn, nil
}

func (s *WebSocketSource) serve(ctx context.Context, conn *websocket.Conn, h Handler) error {
	send := func(ctx context.Context, msg []byte) error {
		wctx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
		defer cancel()
		return conn.Write(wctx, websocket.MessageText, msg)
	}
	if err := h.OnConnect(ctx, send); err != nil {
		return fmt.Errorf("on connect: %w", err)
	}

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go s.pingLoop(pingCtx, conn)

	for {
		readCtx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
		_, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			return err
		}
		if err := h.OnMessage(ctx, data); err != nil {
			return err
		}
	}
}

func (s *WebSocketSource) pingLoop(ctx context.Context, conn *websocket.Conn) {
	t := time.NewTicker(s.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *WebSocketSource) backoff(attempt int) time.Duration {
	exp := attempt - 1
	if exp > 10 {
		exp = 10
	}
	delay := s.cfg.BackoffBase * time.Duration(1<<exp)
	if delay > s.cfg.BackoffMax {
		delay = s.cfg.BackoffMax
	}
	jitter := time.Duration(s.rng.Intn(150)) * time.Millisecond
	return delay + jitter
}
