package service

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"aggregator/domain/book"
	"aggregator/infra/store"
)

var quiet = log.New(io.Discard, "", 0)

func level(exchange string, price, amount float64) book.Level {
	return book.Level{Exchange: exchange, Price: price, Amount: amount}
}

func seeded() *store.Store {
	st := store.New()
	st.Put("binance", book.NewSummary(
		[]book.Level{level("binance", 100, 1)},
		[]book.Level{level("binance", 102, 1)},
	))
	st.Put("bitstamp", book.NewSummary(
		[]book.Level{level("bitstamp", 101, 2)},
		[]book.Level{level("bitstamp", 103, 2)},
	))
	return st
}

func drain(t *testing.T, sub *Subscription) []book.Summary {
	t.Helper()
	var got []book.Summary
	timeout := time.After(2 * time.Second)
	for {
		select {
		case s, ok := <-sub.C:
			if !ok {
				return got
			}
			got = append(got, s)
		case <-timeout:
			t.Fatal("subscription did not close")
		}
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeMerged, "merged": ModeMerged, "Exchanges": ModeExchanges, "tail": ModeTail} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseMode("live"); err == nil {
		t.Error("ParseMode(live) should fail")
	}
}

func TestMergedModeEmitsOneMergedSummary(t *testing.T) {
	agg := NewAggregator(seeded(), Config{Logger: quiet})
	sub := agg.Subscribe(context.Background())

	got := drain(t, sub)
	if len(got) != 1 {
		t.Fatalf("got %d items, want 1", len(got))
	}
	s := got[0]
	if s.Bids[0].Exchange != "bitstamp" || s.Asks[0].Exchange != "binance" {
		t.Fatalf("unexpected heads: %v / %v", s.Bids[0], s.Asks[0])
	}
	if s.Spread != 1 {
		t.Fatalf("spread = %v, want 1", s.Spread)
	}
	if sub.Err() != nil || sub.State() != StateClosed {
		t.Fatalf("err=%v state=%v", sub.Err(), sub.State())
	}
}

func TestExchangesModeEmitsEachEntry(t *testing.T) {
	agg := NewAggregator(seeded(), Config{Mode: ModeExchanges, Logger: quiet})
	got := drain(t, agg.Subscribe(context.Background()))
	if len(got) != 2 {
		t.Fatalf("got %d items, want 2", len(got))
	}
	if got[0].Bids[0].Exchange != "binance" || got[1].Bids[0].Exchange != "bitstamp" {
		t.Fatalf("items not in exchange order: %+v", got)
	}
}

func TestEmptyStore(t *testing.T) {
	agg := NewAggregator(store.New(), Config{Logger: quiet})
	got := drain(t, agg.Subscribe(context.Background()))
	if len(got) != 1 || !got[0].Empty() || got[0].Spread != 0 {
		t.Fatalf("empty store emitted %+v", got)
	}

	agg = NewAggregator(store.New(), Config{Mode: ModeExchanges, Logger: quiet})
	if got := drain(t, agg.Subscribe(context.Background())); len(got) != 0 {
		t.Fatalf("exchanges mode on empty store emitted %d items", len(got))
	}
}

func TestDepthCap(t *testing.T) {
	st := seeded()
	agg := NewAggregator(st, Config{Depth: 1, Logger: quiet})
	m := agg.Merged()
	if len(m.Bids) != 1 || len(m.Asks) != 1 {
		t.Fatalf("depth 1 gave %d/%d levels", len(m.Bids), len(m.Asks))
	}
}

func TestTailModeFollowsStore(t *testing.T) {
	st := seeded()
	agg := NewAggregator(st, Config{Mode: ModeTail, Logger: quiet})

	ctx, cancel := context.WithCancel(context.Background())
	sub := agg.Subscribe(ctx)

	first := <-sub.C
	if first.Bids[0].Price != 101 {
		t.Fatalf("first item = %+v", first)
	}

	st.Put("kraken", book.NewSummary([]book.Level{level("kraken", 101.5, 1)}, nil))

	select {
	case next := <-sub.C:
		if next.Bids[0].Exchange != "kraken" {
			t.Fatalf("tail item = %+v", next)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no update after store change")
	}

	cancel()
	drain(t, sub)
	if sub.Err() != nil {
		t.Fatalf("cancelled subscription err = %v", sub.Err())
	}
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	st := seeded()
	agg := NewAggregator(st, Config{
		Mode:        ModeTail,
		SendBuffer:  1,
		SendTimeout: 20 * time.Millisecond,
		Logger:      quiet,
	})
	sub := agg.Subscribe(context.Background())
	defer sub.Close()

	// never read; keep changing the store until the queue overflows
	deadline := time.After(2 * time.Second)
	for i := 0; ; i++ {
		select {
		case <-sub.Done():
			if !errors.Is(sub.Err(), ErrSlowSubscriber) {
				t.Fatalf("err = %v, want ErrSlowSubscriber", sub.Err())
			}
			return
		case <-deadline:
			t.Fatal("slow subscriber was never dropped")
		default:
		}
		st.Put("binance", book.NewSummary([]book.Level{level("binance", float64(i), 1)}, nil))
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStalledSubscriberDoesNotBlockOthers(t *testing.T) {
	st := seeded()
	agg := NewAggregator(st, Config{Mode: ModeTail, SendBuffer: 1, Logger: quiet})

	stalled := agg.Subscribe(context.Background())
	defer stalled.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	live := agg.Subscribe(ctx)
	<-live.C

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			st.Put("binance", book.NewSummary([]book.Level{level("binance", float64(200+i), 1)}, nil))
		}
	}()

	putsDone := make(chan struct{})
	go func() { wg.Wait(); close(putsDone) }()
	select {
	case <-putsDone:
	case <-time.After(time.Second):
		t.Fatal("puts blocked behind a stalled subscriber")
	}

	var last book.Summary
	timeout := time.After(2 * time.Second)
	for last.Bids == nil || last.Bids[0].Price != 249 {
		select {
		case last = <-live.C:
		case <-timeout:
			t.Fatalf("live subscriber never saw the final update, last=%+v", last)
		}
	}
}

func TestCloseCancelsOnlyThatSubscription(t *testing.T) {
	st := seeded()
	agg := NewAggregator(st, Config{Mode: ModeTail, Logger: quiet})

	a := agg.Subscribe(context.Background())
	b := agg.Subscribe(context.Background())
	defer b.Close()
	<-a.C
	<-b.C

	a.Close()
	if a.State() != StateClosed {
		t.Fatalf("closed subscription state = %v", a.State())
	}

	st.Put("kraken", book.NewSummary(nil, []book.Level{level("kraken", 99, 1)}))
	select {
	case s := <-b.C:
		if s.Asks[0].Exchange != "kraken" {
			t.Fatalf("unexpected item %+v", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("other subscription stopped receiving")
	}
}

func TestAggregatorCloseEndsTailSubscriptions(t *testing.T) {
	agg := NewAggregator(seeded(), Config{Mode: ModeTail, Logger: quiet})
	a := agg.Subscribe(context.Background())
	b := agg.Subscribe(context.Background())

	agg.Close()
	for _, sub := range []*Subscription{a, b} {
		got := drain(t, sub)
		if len(got) > 1 {
			t.Fatalf("closed tail emitted %d items", len(got))
		}
		if sub.Err() != nil {
			t.Fatalf("shutdown is not a subscriber error: %v", sub.Err())
		}
		if sub.State() != StateClosed {
			t.Fatalf("state = %s, want CLOSED", sub.State())
		}
	}

	// subscribing after Close yields a closed subscription
	late := agg.Subscribe(context.Background())
	drain(t, late)
}
