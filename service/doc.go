// Package service orchestrates the aggregator: it snapshots the shared
// store, merges per-exchange summaries and runs one emission task per
// subscriber, decoupled from transports like gRPC or websockets.
package service
