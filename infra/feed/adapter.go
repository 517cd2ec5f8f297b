package feed

import (
	"context"
	"errors"
	"log"
	"sync"

	"aggregator/domain/book"
)

// Putter is the write side of the shared store.
type Putter interface {
	Put(exchange string, sum book.Summary)
}

// Sender writes one text frame on the live connection.
type Sender func(ctx context.Context, msg []byte) error

// Handler is the callback set a Source drives for one exchange.
type Handler interface {
	Exchange() string
	// OnConnect runs after every successful (re)connect. send is nil
	// when the transport cannot write back.
	OnConnect(ctx context.Context, send Sender) error
	// OnMessage handles one inbound payload. An error ends the
	// connection; per-message decode failures are not errors.
	OnMessage(ctx context.Context, payload []byte) error
}

// Adapter is the Handler for one exchange.
type Adapter struct {
	exchange string
	decoder  Decoder
	init     []byte
	store    Putter
	logger   *log.Logger

	mu   sync.Mutex
	send Sender
}

// ErrNotConnected is returned by Send before the first connect or on a
// transport that cannot write back.
var ErrNotConnected = errors.New("feed: no writable connection")

// AdapterConfig describes one exchange feed.
type AdapterConfig struct {
	Exchange string
	Decoder  Decoder
	// InitMessage is sent after every connect when non-empty.
	InitMessage []byte
	Logger      *log.Logger
}

func NewAdapter(cfg AdapterConfig, store Putter) *Adapter {
	if cfg.Decoder == nil {
		cfg.Decoder = DecoderFunc(decodePlain)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Adapter{
		exchange: cfg.Exchange,
		decoder:  cfg.Decoder,
		init:     cfg.InitMessage,
		store:    store,
		logger:   cfg.Logger,
	}
}

func (a *Adapter) Exchange() string { return a.exchange }

func (a *Adapter) OnConnect(ctx context.Context, send Sender) error {
	a.logger.Printf("[feed] %s connected", a.exchange)
	a.mu.Lock()
	a.send = send
	a.mu.Unlock()

	if len(a.init) == 0 {
		return nil
	}
	if send == nil {
		a.logger.Printf("[feed] %s: transport cannot write, init message not sent", a.exchange)
		return nil
	}
	return send(ctx, a.init)
}

// Send writes msg on the most recent connection. After a drop it fails
// with the transport's error until the source reconnects.
func (a *Adapter) Send(ctx context.Context, msg []byte) error {
	a.mu.Lock()
	send := a.send
	a.mu.Unlock()
	if send == nil {
		return ErrNotConnected
	}
	return send(ctx, msg)
}

func (a *Adapter) OnMessage(_ context.Context, payload []byte) error {
	err := a.DecodeAndStore(payload)
	switch {
	case err == nil, errors.Is(err, ErrIgnored):
	default:
		// keep the previous summary and the connection
		a.logger.Printf("[feed] %s: dropping message: %v", a.exchange, err)
	}
	return nil
}

// DecodeAndStore decodes payload and replaces this exchange's entry.
// Nothing is stored when it returns an error.
func (a *Adapter) DecodeAndStore(payload []byte) error {
	sum, err := a.Decode(payload)
	if err != nil {
		return err
	}
	a.store.Put(a.exchange, sum)
	return nil
}

// Decode turns payload into a ranked Summary for this exchange.
func (a *Adapter) Decode(payload []byte) (book.Summary, error) {
	raw, err := a.decoder.Decode(payload)
	if errors.Is(err, ErrIgnored) {
		return book.Summary{}, err
	}
	if err != nil {
		return book.Summary{}, &DecodeError{Exchange: a.exchange, Err: err}
	}

	bids, err := Levels(a.exchange, raw.Bids)
	if err != nil {
		return book.Summary{}, &DecodeError{Exchange: a.exchange, Err: err}
	}
	asks, err := Levels(a.exchange, raw.Asks)
	if err != nil {
		return book.Summary{}, &DecodeError{Exchange: a.exchange, Err: err}
	}
	return book.NewSummary(bids, asks), nil
}
