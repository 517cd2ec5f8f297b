package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"aggregator/domain/book"
	"aggregator/infra/store"
)

// Mode selects what a subscription emits.
type Mode int

const (
	// ModeMerged emits one merged summary of the snapshot and closes.
	ModeMerged Mode = iota
	// ModeExchanges emits every per-exchange summary of the snapshot and closes.
	ModeExchanges
	// ModeTail emits the merged snapshot, then a fresh merge after every
	// store change until the subscriber leaves.
	ModeTail
)

func (m Mode) String() string {
	switch m {
	case ModeMerged:
		return "merged"
	case ModeExchanges:
		return "exchanges"
	case ModeTail:
		return "tail"
	default:
		return "unknown"
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "merged":
		return ModeMerged, nil
	case "exchanges":
		return ModeExchanges, nil
	case "tail":
		return ModeTail, nil
	default:
		return 0, fmt.Errorf("service: unknown stream mode %q", s)
	}
}

// Config tunes an Aggregator. Zero values take defaults.
type Config struct {
	Mode Mode
	// Depth caps each side of merged summaries; <= 0 keeps full depth.
	Depth int
	// SendBuffer bounds every subscriber's outbound queue.
	SendBuffer int
	// SendTimeout drops a subscriber whose queue stays full this long.
	// 0 waits forever.
	SendTimeout time.Duration
	Logger      *log.Logger
}

const defaultSendBuffer = 4

// Aggregator is the read side of the store. Every subscription it
// hands out also ends when the Aggregator is closed.
type Aggregator struct {
	store *store.Store
	cfg   Config

	base     context.Context
	shutdown context.CancelFunc
}

func NewAggregator(st *store.Store, cfg Config) *Aggregator {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	base, shutdown := context.WithCancel(context.Background())
	return &Aggregator{store: st, cfg: cfg, base: base, shutdown: shutdown}
}

// Close ends every live subscription, tailing ones included, and makes
// later Subscribe calls return already-closed subscriptions. Call it
// before stopping transports that wait for their streams to finish.
func (a *Aggregator) Close() {
	a.shutdown()
}

func (a *Aggregator) Store() *store.Store { return a.store }

func (a *Aggregator) Mode() Mode { return a.cfg.Mode }

// Merged merges the current snapshot.
func (a *Aggregator) Merged() book.Summary {
	s, _ := a.merged()
	return s
}

// MergedVersion merges the current snapshot and reports the store
// version it was taken at.
func (a *Aggregator) MergedVersion() (book.Summary, uint64) {
	return a.merged()
}

func (a *Aggregator) merged() (book.Summary, uint64) {
	snap := a.store.Snapshot()
	return book.Merge(snap.Summaries(), a.cfg.Depth), snap.Version
}

// Items returns what a non-tailing subscription emits for the current
// snapshot: one merged summary, or one summary per exchange.
func (a *Aggregator) Items() []book.Summary {
	if a.cfg.Mode == ModeExchanges {
		snap := a.store.Snapshot()
		out := make([]book.Summary, 0, len(snap.Entries))
		for _, e := range snap.Entries {
			out = append(out, e.Summary.Truncate(a.cfg.Depth))
		}
		return out
	}
	return []book.Summary{a.Merged()}
}
