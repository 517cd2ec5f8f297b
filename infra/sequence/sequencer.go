package sequence

import "sync/atomic"

// Sequencer hands out strictly increasing versions for store updates.
type Sequencer struct {
	next atomic.Uint64
}

// New creates a sequencer starting from a given value.
// Fresh process: start = 0. Restored checkpoint: start = checkpoint version.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

// Next returns the next version.
func (s *Sequencer) Next() uint64 {
	return s.next.Add(1)
}

// Current returns the last issued version.
func (s *Sequencer) Current() uint64 {
	return s.next.Load()
}

// Advance moves the sequencer forward to v if it is behind.
// Used after restoring a checkpoint.
func (s *Sequencer) Advance(v uint64) {
	for {
		cur := s.next.Load()
		if cur >= v || s.next.CompareAndSwap(cur, v) {
			return
		}
	}
}
