package wsserver

import (
	"context"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait           = 10 * time.Second
	pongWait            = 60 * time.Second
	pingPeriod          = (pongWait * 9) / 10
	maxMessageSize      = 4 * 1024
	defaultSendBuf      = 16
	defaultPublishBuf   = 64
	maxConsecutiveDrops = 50
)

// Hub fans encoded summaries out to websocket clients. All client
// bookkeeping happens on the Run goroutine.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	publish    chan []byte
	done       chan struct{}

	clients map[*Client]struct{}
	// latest is replayed to every client on register
	latest []byte

	sendBuf int

	publishDrops atomic.Uint64
	clientCount  atomic.Int64

	logger *log.Logger
}

type Client struct {
	ID   uuid.UUID
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// consecutive drops; reset on every delivered message
	drops int
}

// NewHub creates a Hub. Provide a logger or nil.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		publish:    make(chan []byte, defaultPublishBuf),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		sendBuf:    defaultSendBuf,
		logger:     logger,
	}
}

// Run runs the hub event loop until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	h.logger.Println("[ws] hub started")
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.clientCount.Store(int64(len(h.clients)))
			if h.latest != nil {
				c.send <- h.latest
			}
			h.logger.Printf("[ws] client %s connected", c.ID)

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.logger.Printf("[ws] client %s disconnected", c.ID)
			}

		case msg := <-h.publish:
			h.latest = msg
			for c := range h.clients {
				select {
				case c.send <- msg:
					c.drops = 0
				default:
					h.publishDrops.Add(1)
					c.drops++
					if c.drops > maxConsecutiveDrops {
						h.logger.Printf("[ws] evicting slow client %s after %d drops", c.ID, c.drops)
						h.drop(c)
						_ = c.conn.Close()
					}
				}
			}

		case <-ctx.Done():
			h.logger.Println("[ws] hub shutting down")
			for c := range h.clients {
				h.drop(c)
				_ = c.conn.Close()
			}
			return
		}
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.clientCount.Store(int64(len(h.clients)))
}

// Publish queues msg for every client. It never blocks: when the hub
// is backed up the message is dropped and the next one supersedes it.
func (h *Hub) Publish(msg []byte) {
	select {
	case h.publish <- msg:
	default:
		h.publishDrops.Add(1)
		h.logger.Println("[ws] publish channel full, dropping summary")
	}
}

// Stats returns the connected client count and total drops.
func (h *Hub) Stats() (clients int, drops uint64) {
	return int(h.clientCount.Load()), h.publishDrops.Load()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and registers a client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("[ws] upgrade failed: %v", err)
		return
	}

	client := &Client{
		ID:   uuid.New(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.sendBuf),
	}

	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump only services control frames; clients have nothing to say.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure,
			) {
				c.hub.logger.Printf("[ws] client %s read error: %v", c.ID, err)
			}
			return
		}
	}
}

// writePump serializes all writes to the connection, one summary per frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
