package store

import (
	"fmt"
	"testing"

	"aggregator/domain/book"
)

func BenchmarkPut(b *testing.B) {
	s := New()
	// alternate so every Put is a real change
	sums := [2]book.Summary{summaryFor("binance", 100), summaryFor("binance", 101)}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Put("binance", sums[i&1])
	}
}

func BenchmarkSnapshotParallel(b *testing.B) {
	s := New()
	for i := 0; i < 8; i++ {
		s.Put(fmt.Sprintf("ex%d", i), summaryFor("x", float64(i)))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = s.Snapshot()
		}
	})
}
