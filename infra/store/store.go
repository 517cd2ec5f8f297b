// Package store is the shared state of the aggregator: the latest
// Summary per exchange, written by feed adapters and read by every
// publisher.
package store

import (
	"sort"
	"sync"

	"aggregator/domain/book"
	"aggregator/infra/sequence"
)

// Entry is one exchange's latest summary.
type Entry struct {
	Exchange string
	Summary  book.Summary
}

// Snapshot is a point-in-time copy of the whole store.
// Entries are sorted by exchange name.
type Snapshot struct {
	Version uint64
	Entries []Entry
}

// Summaries returns the entry summaries in snapshot order.
func (s Snapshot) Summaries() []book.Summary {
	out := make([]book.Summary, len(s.Entries))
	for i, e := range s.Entries {
		out[i] = e.Summary
	}
	return out
}

type watcher struct {
	ch chan struct{}
}

// Store maps exchange name to that exchange's latest Summary.
// One coarse RWMutex guards the map: writes happen once per feed
// message, not per level.
type Store struct {
	mu      sync.RWMutex
	books   map[string]book.Summary
	version uint64
	seq     *sequence.Sequencer

	watchMu  sync.Mutex
	watchers map[*watcher]struct{}
}

func New() *Store {
	return NewWithSequencer(sequence.New(0))
}

func NewWithSequencer(seq *sequence.Sequencer) *Store {
	return &Store{
		books:    make(map[string]book.Summary),
		version:  seq.Current(),
		seq:      seq,
		watchers: make(map[*watcher]struct{}),
	}
}

// Put replaces the entry for exchange. The store takes ownership of
// the summary; callers must not modify its slices afterwards.
// Putting a summary equal to the current one changes nothing.
func (s *Store) Put(exchange string, sum book.Summary) {
	s.mu.Lock()
	if cur, ok := s.books[exchange]; ok && cur.Equal(sum) {
		s.mu.Unlock()
		return
	}
	s.books[exchange] = sum
	s.version = s.seq.Next()
	s.mu.Unlock()

	s.notify()
}

// Get returns the current summary for exchange.
func (s *Store) Get(exchange string) (book.Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum, ok := s.books[exchange]
	return sum, ok
}

// Len returns the number of exchanges seen so far.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.books)
}

// Version returns the version of the last applied Put.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Snapshot copies every entry under one read lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	snap := Snapshot{
		Version: s.version,
		Entries: make([]Entry, 0, len(s.books)),
	}
	for name, sum := range s.books {
		snap.Entries = append(snap.Entries, Entry{Exchange: name, Summary: sum})
	}
	s.mu.RUnlock()

	sort.Slice(snap.Entries, func(i, j int) bool {
		return snap.Entries[i].Exchange < snap.Entries[j].Exchange
	})
	return snap
}

// Restore loads entries wholesale, e.g. from a checkpoint, and moves
// the version forward to at least version.
func (s *Store) Restore(version uint64, entries []Entry) {
	s.mu.Lock()
	for _, e := range entries {
		s.books[e.Exchange] = e.Summary
	}
	s.seq.Advance(version)
	s.version = s.seq.Next()
	s.mu.Unlock()

	s.notify()
}

// Watch returns a channel that receives a value after Puts. Bursts
// coalesce into a single pending notification, so a watcher that
// falls behind sees "something changed" once. Put never blocks on
// a watcher. Call cancel to stop watching.
func (s *Store) Watch() (<-chan struct{}, func()) {
	w := &watcher{ch: make(chan struct{}, 1)}

	s.watchMu.Lock()
	s.watchers[w] = struct{}{}
	s.watchMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.watchMu.Lock()
			delete(s.watchers, w)
			s.watchMu.Unlock()
		})
	}
	return w.ch, cancel
}

func (s *Store) notify() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for w := range s.watchers {
		select {
		case w.ch <- struct{}{}:
		default:
		}
	}
}
