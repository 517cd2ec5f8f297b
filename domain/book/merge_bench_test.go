package book

import (
	"math/rand"
	"testing"
)

// ---------------- Merge Benchmarks ---------------- //

func benchInputs(exchanges, depth int) []Summary {
	rng := rand.New(rand.NewSource(7))
	names := []string{"binance", "bitstamp", "kraken", "coinbase", "okx", "bybit"}
	out := make([]Summary, 0, exchanges)
	for e := 0; e < exchanges; e++ {
		bids := make([]Level, depth)
		asks := make([]Level, depth)
		for i := 0; i < depth; i++ {
			bids[i] = Level{Exchange: names[e%len(names)], Price: 100 - rng.Float64(), Amount: rng.Float64()}
			asks[i] = Level{Exchange: names[e%len(names)], Price: 100 + rng.Float64(), Amount: rng.Float64()}
		}
		out = append(out, NewSummary(bids, asks))
	}
	return out
}

func BenchmarkMergeTwoExchangesDepth20(b *testing.B) {
	in := benchInputs(2, 20)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Merge(in, 0)
	}
}

func BenchmarkMergeSixExchangesDepth100(b *testing.B) {
	in := benchInputs(6, 100)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Merge(in, 10)
	}
}
