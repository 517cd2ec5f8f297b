// Package feed turns exchange market-data feeds into per-exchange
// summaries in the shared store.
//
// A feed is an Adapter (what the payloads mean) driven by a Source
// (how payloads arrive). Adapters are configured, not subclassed:
// the exchange name, the payload Decoder and an optional init
// message fully describe one.
package feed
