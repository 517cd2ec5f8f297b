package book

// Level is a single price level as reported by one exchange.
type Level struct {
	Exchange string
	Price    float64
	Amount   float64
}

func byPriceDesc(a, b Level) int {
	switch {
	case a.Price > b.Price:
		return -1
	case a.Price < b.Price:
		return 1
	default:
		return 0
	}
}

func byPriceAsc(a, b Level) int {
	return byPriceDesc(b, a)
}
