package book

import "slices"

// Summary is a ranked view of one side-pair of a book.
// Bids are best (highest) first, asks are best (lowest) first.
type Summary struct {
	Spread float64
	Bids   []Level
	Asks   []Level
}

// NewSummary ranks bids and asks and computes the spread.
// The slices are taken over and sorted in place.
func NewSummary(bids, asks []Level) Summary {
	if bids == nil {
		bids = []Level{}
	}
	if asks == nil {
		asks = []Level{}
	}
	slices.SortStableFunc(bids, byPriceDesc)
	slices.SortStableFunc(asks, byPriceAsc)

	return Summary{
		Spread: Spread(bids, asks),
		Bids:   bids,
		Asks:   asks,
	}
}

// Spread returns best ask minus best bid, or 0 when a side is empty.
// Both sides must already be ranked.
func Spread(bids, asks []Level) float64 {
	if len(bids) == 0 || len(asks) == 0 {
		return 0
	}
	return asks[0].Price - bids[0].Price
}

// BestBid returns the head of the bid side.
func (s Summary) BestBid() (Level, bool) {
	if len(s.Bids) == 0 {
		return Level{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the head of the ask side.
func (s Summary) BestAsk() (Level, bool) {
	if len(s.Asks) == 0 {
		return Level{}, false
	}
	return s.Asks[0], true
}

// Truncate keeps at most depth levels per side. depth <= 0 keeps everything.
// The heads do not change, so neither does the spread.
func (s Summary) Truncate(depth int) Summary {
	if depth <= 0 {
		return s
	}
	if len(s.Bids) > depth {
		s.Bids = s.Bids[:depth:depth]
	}
	if len(s.Asks) > depth {
		s.Asks = s.Asks[:depth:depth]
	}
	return s
}

// Equal reports whether both summaries hold the same levels in the same order.
func (s Summary) Equal(o Summary) bool {
	return s.Spread == o.Spread &&
		slices.Equal(s.Bids, o.Bids) &&
		slices.Equal(s.Asks, o.Asks)
}

// Empty reports whether both sides are empty.
func (s Summary) Empty() bool {
	return len(s.Bids) == 0 && len(s.Asks) == 0
}
