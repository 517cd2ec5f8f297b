package kafka

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/segmentio/kafka-go"

	"aggregator/domain/book"
	"aggregator/infra/feed"
)

type fakeReader struct {
	msgs   [][]byte
	closed bool
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	v := r.msgs[0]
	r.msgs = r.msgs[1:]
	return kafka.Message{Value: v}, nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type lastPut struct {
	n   int
	sum book.Summary
}

func (p *lastPut) Put(_ string, sum book.Summary) {
	p.n++
	p.sum = sum
}

type stopAfter struct {
	feed.Handler
	n      int
	cancel context.CancelFunc
}

func (s *stopAfter) OnMessage(ctx context.Context, payload []byte) error {
	err := s.Handler.OnMessage(ctx, payload)
	s.n--
	if s.n == 0 {
		s.cancel()
	}
	return err
}

func TestSourceFeedsHandler(t *testing.T) {
	quiet := log.New(io.Discard, "", 0)
	r := &fakeReader{msgs: [][]byte{
		[]byte(`{"bids":[["1","1"]],"asks":[["3","1"]]}`),
		[]byte(`garbage`),
		[]byte(`{"bids":[["2","1"]],"asks":[["3","1"]]}`),
	}}
	st := &lastPut{}
	a := feed.NewAdapter(feed.AdapterConfig{Exchange: "binance", Logger: quiet}, st)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := &stopAfter{Handler: a, n: 3, cancel: cancel}

	err := NewSourceWithReader(r, "books", quiet).Run(ctx, h)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v", err)
	}
	if st.n != 2 || st.sum.Spread != 1 {
		t.Fatalf("puts=%d last=%+v", st.n, st.sum)
	}
	if !r.closed {
		t.Fatal("reader not closed")
	}
}
