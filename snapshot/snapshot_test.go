package snapshot

import (
	"errors"
	"testing"

	"github.com/cockroachdb/pebble"

	"aggregator/domain/book"
	"aggregator/infra/store"
)

func sample(exchange string, bid float64) book.Summary {
	return book.NewSummary(
		[]book.Level{{Exchange: exchange, Price: bid, Amount: 1}},
		[]book.Level{{Exchange: exchange, Price: bid + 0.5, Amount: 2}},
	)
}

func TestWriteAndLoad(t *testing.T) {
	dir := t.TempDir()
	cp, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	err = cp.Write(store.Snapshot{
		Version: 7,
		Entries: []store.Entry{
			{Exchange: "binance", Summary: sample("binance", 100)},
			{Exchange: "bitstamp", Summary: sample("bitstamp", 99)},
		},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := cp.Close(); err != nil {
		t.Fatal(err)
	}

	// --- reopen ---
	cp, err = Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer cp.Close()

	snap, err := cp.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.Version != 7 || len(snap.Entries) != 2 {
		t.Fatalf("loaded version=%d entries=%d", snap.Version, len(snap.Entries))
	}
	if snap.Entries[0].Exchange != "binance" || !snap.Entries[0].Summary.Equal(sample("binance", 100)) {
		t.Fatalf("entry 0 = %+v", snap.Entries[0])
	}
}

func TestLoadEmpty(t *testing.T) {
	cp, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer cp.Close()

	snap, err := cp.Load()
	if err != nil {
		t.Fatal(err)
	}
	if snap.Version != 0 || len(snap.Entries) != 0 {
		t.Fatalf("empty checkpoint loaded %+v", snap)
	}
}

func TestWriteOverwritesPerExchange(t *testing.T) {
	cp, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer cp.Close()

	_ = cp.Write(store.Snapshot{Version: 1, Entries: []store.Entry{
		{Exchange: "binance", Summary: sample("binance", 1)},
		{Exchange: "bitstamp", Summary: sample("bitstamp", 2)},
	}})
	_ = cp.Write(store.Snapshot{Version: 2, Entries: []store.Entry{
		{Exchange: "binance", Summary: sample("binance", 5)},
	}})

	snap, err := cp.Load()
	if err != nil {
		t.Fatal(err)
	}
	if snap.Version != 2 || len(snap.Entries) != 2 {
		t.Fatalf("version=%d entries=%d", snap.Version, len(snap.Entries))
	}
	if snap.Entries[0].Summary.Bids[0].Price != 5 {
		t.Fatalf("binance not overwritten: %+v", snap.Entries[0])
	}
}

func TestLoadCorruptValue(t *testing.T) {
	cp, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer cp.Close()

	if err := cp.db.Set(keyFor("binance"), []byte{0x0a}, pebble.Sync); err != nil {
		t.Fatal(err)
	}
	if _, err := cp.Load(); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}
