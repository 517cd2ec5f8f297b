package book

// Merge concatenates every input's bids and asks, re-ranks them and
// recomputes the spread. depth > 0 caps each side of the result.
//
// The sort is stable: levels at equal prices keep their input order,
// so callers that want reproducible attribution must pass summaries
// in a stable order.
func Merge(summaries []Summary, depth int) Summary {
	var nb, na int
	for _, s := range summaries {
		nb += len(s.Bids)
		na += len(s.Asks)
	}

	bids := make([]Level, 0, nb)
	asks := make([]Level, 0, na)
	for _, s := range summaries {
		bids = append(bids, s.Bids...)
		asks = append(asks, s.Asks...)
	}

	return NewSummary(bids, asks).Truncate(depth)
}
