// Package pb holds the orderbook.proto messages and service, encoded
// with protowire. It is wire compatible with code generated from
// api/proto/orderbook.proto; field numbers and names here mirror that
// file and contract_test.go checks them against it.
package pb

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"aggregator/domain/book"
)

var errWireType = errors.New("pb: unexpected wire type")

// Field numbers from orderbook.proto.
const (
	levelExchangeField protowire.Number = 1
	levelPriceField    protowire.Number = 2
	levelAmountField   protowire.Number = 3

	summarySpreadField protowire.Number = 1
	summaryBidsField   protowire.Number = 2
	summaryAsksField   protowire.Number = 3
)

type Empty struct{}

type Level struct {
	Exchange string
	Price    float64
	Amount   float64
}

type Summary struct {
	Spread float64
	Bids   []*Level
	Asks   []*Level
}

// -------------------- Empty --------------------

func (*Empty) MarshalWire() ([]byte, error) { return nil, nil }

func (*Empty) UnmarshalWire(b []byte) error {
	return skipFields(b)
}

// -------------------- Level --------------------

func (l *Level) MarshalWire() ([]byte, error) {
	return l.appendWire(nil), nil
}

func (l *Level) appendWire(b []byte) []byte {
	if l.Exchange != "" {
		b = protowire.AppendTag(b, levelExchangeField, protowire.BytesType)
		b = protowire.AppendString(b, l.Exchange)
	}
	b = appendDouble(b, levelPriceField, l.Price)
	b = appendDouble(b, levelAmountField, l.Amount)
	return b
}

func (l *Level) UnmarshalWire(b []byte) error {
	*l = Level{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch num {
		case levelExchangeField:
			if typ != protowire.BytesType {
				return fmt.Errorf("level.exchange: %w", errWireType)
			}
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			l.Exchange = v
			b = b[n:]
		case levelPriceField, levelAmountField:
			v, n, err := consumeDouble(b, typ)
			if err != nil {
				return fmt.Errorf("level field %d: %w", num, err)
			}
			if num == levelPriceField {
				l.Price = v
			} else {
				l.Amount = v
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

// -------------------- Summary --------------------

func (s *Summary) MarshalWire() ([]byte, error) {
	var b []byte
	b = appendDouble(b, summarySpreadField, s.Spread)
	for _, l := range s.Bids {
		b = appendLevel(b, summaryBidsField, l)
	}
	for _, l := range s.Asks {
		b = appendLevel(b, summaryAsksField, l)
	}
	return b, nil
}

func (s *Summary) UnmarshalWire(b []byte) error {
	*s = Summary{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch num {
		case summarySpreadField:
			v, n, err := consumeDouble(b, typ)
			if err != nil {
				return fmt.Errorf("summary.spread: %w", err)
			}
			s.Spread = v
			b = b[n:]
		case summaryBidsField, summaryAsksField:
			if typ != protowire.BytesType {
				return fmt.Errorf("summary field %d: %w", num, errWireType)
			}
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			l := &Level{}
			if err := l.UnmarshalWire(raw); err != nil {
				return err
			}
			if num == summaryBidsField {
				s.Bids = append(s.Bids, l)
			} else {
				s.Asks = append(s.Asks, l)
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

// -------------------- Converters --------------------

func FromBook(s book.Summary) *Summary {
	return &Summary{
		Spread: s.Spread,
		Bids:   fromLevels(s.Bids),
		Asks:   fromLevels(s.Asks),
	}
}

func (s *Summary) ToBook() book.Summary {
	return book.Summary{
		Spread: s.Spread,
		Bids:   toLevels(s.Bids),
		Asks:   toLevels(s.Asks),
	}
}

func fromLevels(in []book.Level) []*Level {
	out := make([]*Level, len(in))
	for i, l := range in {
		out[i] = &Level{Exchange: l.Exchange, Price: l.Price, Amount: l.Amount}
	}
	return out
}

func toLevels(in []*Level) []book.Level {
	out := make([]book.Level, len(in))
	for i, l := range in {
		out[i] = book.Level{Exchange: l.Exchange, Price: l.Price, Amount: l.Amount}
	}
	return out
}

// -------------------- Helpers --------------------

// proto3: zero scalars are not written
func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	bits := math.Float64bits(v)
	if bits == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, bits)
}

func appendLevel(b []byte, num protowire.Number, l *Level) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, l.appendWire(nil))
}

func consumeDouble(b []byte, typ protowire.Type) (float64, int, error) {
	if typ != protowire.Fixed64Type {
		return 0, 0, errWireType
	}
	v, n := protowire.ConsumeFixed64(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return math.Float64frombits(v), n, nil
}

func skipFields(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}
