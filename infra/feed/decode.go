package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"aggregator/domain/book"
)

// ErrIgnored marks payloads that carry no book data (subscription
// acks, heartbeats). They are skipped, not counted as failures.
var ErrIgnored = errors.New("feed: payload carries no book data")

// DecodeError is returned when a payload cannot be turned into a Summary.
type DecodeError struct {
	Exchange string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("feed %s: decode: %v", e.Exchange, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Pair is a raw [price, amount] pair as sent by the exchange.
type Pair []string

// RawBook is the normalized shape every Decoder produces.
type RawBook struct {
	Bids []Pair
	Asks []Pair
}

// Decoder parses an exchange payload into a RawBook.
type Decoder interface {
	Decode(payload []byte) (RawBook, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(payload []byte) (RawBook, error)

func (f DecoderFunc) Decode(payload []byte) (RawBook, error) { return f(payload) }

// Decoder kinds accepted by NewDecoder.
const (
	DecoderPlain    = "plain"
	DecoderEnvelope = "envelope"
)

// NewDecoder returns the decoder registered under kind.
func NewDecoder(kind string) (Decoder, error) {
	switch strings.ToLower(kind) {
	case DecoderPlain, "":
		return DecoderFunc(decodePlain), nil
	case DecoderEnvelope:
		return DecoderFunc(decodeEnvelope), nil
	default:
		return nil, fmt.Errorf("feed: unknown decoder %q", kind)
	}
}

// {"bids":[["100.5","2"]],"asks":[["101.0","1"]]}
type plainMessage struct {
	Bids *[]Pair `json:"bids"`
	Asks *[]Pair `json:"asks"`
}

func decodePlain(payload []byte) (RawBook, error) {
	var m plainMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return RawBook{}, err
	}
	if m.Bids == nil || m.Asks == nil {
		return RawBook{}, errors.New("missing bids or asks")
	}
	return RawBook{Bids: *m.Bids, Asks: *m.Asks}, nil
}

// {"event":"data","channel":"order_book_ethbtc","data":{"bids":[...],"asks":null}}
type envelopeMessage struct {
	Event string `json:"event"`
	Data  *struct {
		Bids []Pair `json:"bids"`
		Asks []Pair `json:"asks"`
	} `json:"data"`
}

func decodeEnvelope(payload []byte) (RawBook, error) {
	var m envelopeMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return RawBook{}, err
	}
	if m.Event != "" && m.Event != "data" {
		return RawBook{}, ErrIgnored
	}
	if m.Data == nil {
		return RawBook{}, errors.New("missing data object")
	}
	return RawBook{Bids: m.Data.Bids, Asks: m.Data.Asks}, nil
}

// Levels converts raw pairs into levels attributed to exchange.
// Any malformed pair fails the whole side.
func Levels(exchange string, pairs []Pair) ([]book.Level, error) {
	out := make([]book.Level, 0, len(pairs))
	for i, p := range pairs {
		if len(p) != 2 {
			return nil, fmt.Errorf("level %d: want [price, amount], got %d fields", i, len(p))
		}
		price, err := parseNumber(p[0])
		if err != nil {
			return nil, fmt.Errorf("level %d: price %q: %w", i, p[0], err)
		}
		amount, err := parseNumber(p[1])
		if err != nil {
			return nil, fmt.Errorf("level %d: amount %q: %w", i, p[1], err)
		}
		out = append(out, book.Level{Exchange: exchange, Price: price, Amount: amount})
	}
	return out, nil
}

// decimal rejects NaN and Inf, which would break ranking.
func parseNumber(s string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	f, _ := d.Float64()
	if math.IsInf(f, 0) {
		return 0, errors.New("out of float64 range")
	}
	return f, nil
}
