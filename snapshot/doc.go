// Package snapshot checkpoints the shared store to pebble so a
// restarted aggregator can serve the last known book per exchange
// before its feeds deliver their first update.
//
// Keys are "summary/<exchange>"; values are the protowire encoding of
// the Summary. A "meta/version" key records the store version of the
// last checkpoint.
package snapshot
