// Package book holds the shared vocabulary of the aggregator: price
// levels attributed to an exchange, per-exchange and merged summaries,
// and the merge that ranks many summaries into one.
//
// Summaries are values. Nothing in this package mutates a Summary
// after it has been built, so they can be shared across goroutines
// without copying.
package book
