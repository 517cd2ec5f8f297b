package book

import "testing"

func checkRanked(t *testing.T, s Summary) {
	t.Helper()
	for i := 1; i < len(s.Bids); i++ {
		if s.Bids[i-1].Price < s.Bids[i].Price {
			t.Fatalf("bids not descending at %d: %v", i, s.Bids)
		}
	}
	for i := 1; i < len(s.Asks); i++ {
		if s.Asks[i-1].Price > s.Asks[i].Price {
			t.Fatalf("asks not ascending at %d: %v", i, s.Asks)
		}
	}
	want := 0.0
	if len(s.Bids) > 0 && len(s.Asks) > 0 {
		want = s.Asks[0].Price - s.Bids[0].Price
	}
	if s.Spread != want {
		t.Fatalf("spread = %v, want %v", s.Spread, want)
	}
}

func TestNewSummaryRanksSides(t *testing.T) {
	s := NewSummary(
		[]Level{{"a", 99, 1}, {"a", 101, 1}, {"a", 100, 1}},
		[]Level{{"a", 104, 1}, {"a", 102, 1}, {"a", 103, 1}},
	)
	checkRanked(t, s)
	if s.Bids[0].Price != 101 || s.Asks[0].Price != 102 {
		t.Fatalf("unexpected heads: bid=%v ask=%v", s.Bids[0], s.Asks[0])
	}
	if s.Spread != 1 {
		t.Fatalf("spread = %v, want 1", s.Spread)
	}
}

func TestNewSummaryEmptySide(t *testing.T) {
	s := NewSummary([]Level{{"x", 50, 1}}, nil)
	if s.Spread != 0 {
		t.Fatalf("spread with empty asks = %v, want 0", s.Spread)
	}
	if s.Asks == nil || len(s.Asks) != 0 {
		t.Fatalf("asks should be empty, non-nil: %#v", s.Asks)
	}
	if _, ok := s.BestAsk(); ok {
		t.Fatal("BestAsk on empty side reported ok")
	}
	if lvl, ok := s.BestBid(); !ok || lvl.Price != 50 {
		t.Fatalf("BestBid = %v, %v", lvl, ok)
	}
}

func TestTruncate(t *testing.T) {
	s := NewSummary(
		[]Level{{"a", 3, 1}, {"a", 2, 1}, {"a", 1, 1}},
		[]Level{{"a", 4, 1}, {"a", 5, 1}},
	)
	got := s.Truncate(2)
	if len(got.Bids) != 2 || len(got.Asks) != 2 {
		t.Fatalf("truncate(2) sizes = %d/%d", len(got.Bids), len(got.Asks))
	}
	if got.Spread != s.Spread {
		t.Fatalf("truncate changed spread: %v -> %v", s.Spread, got.Spread)
	}
	if len(s.Truncate(0).Bids) != 3 {
		t.Fatal("truncate(0) should keep all levels")
	}

	// appending to a truncated view must not clobber the original
	got.Bids = append(got.Bids, Level{"b", 0.5, 1})
	if s.Bids[2].Exchange != "a" {
		t.Fatal("truncated summary aliases the original backing array")
	}
}

func TestEqual(t *testing.T) {
	a := NewSummary([]Level{{"a", 1, 1}}, []Level{{"a", 2, 1}})
	b := NewSummary([]Level{{"a", 1, 1}}, []Level{{"a", 2, 1}})
	if !a.Equal(b) {
		t.Fatal("identical summaries not equal")
	}
	c := NewSummary([]Level{{"a", 1, 2}}, []Level{{"a", 2, 1}})
	if a.Equal(c) {
		t.Fatal("summaries with different amounts reported equal")
	}
}
