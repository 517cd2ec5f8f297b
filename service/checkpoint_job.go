package service

import (
	"context"
	"log"
	"time"

	"aggregator/infra/store"
)

// Checkpointer persists store snapshots.
type Checkpointer interface {
	Write(store.Snapshot) error
	Load() (store.Snapshot, error)
}

// Restore loads the last checkpoint into the store. It returns the
// number of exchanges restored.
func Restore(st *store.Store, cp Checkpointer) (int, error) {
	snap, err := cp.Load()
	if err != nil {
		return 0, err
	}
	if len(snap.Entries) == 0 {
		return 0, nil
	}
	st.Restore(snap.Version, snap.Entries)
	return len(snap.Entries), nil
}

// StartCheckpointJob writes the store to cp every interval while it
// keeps changing, and once more when ctx is done.
func StartCheckpointJob(ctx context.Context, st *store.Store, cp Checkpointer, interval time.Duration, logger *log.Logger) <-chan struct{} {
	if logger == nil {
		logger = log.Default()
	}
	done := make(chan struct{})

	go func() {
		defer close(done)
		t := time.NewTicker(interval)
		defer t.Stop()

		var written uint64
		write := func() {
			snap := st.Snapshot()
			if snap.Version == written || len(snap.Entries) == 0 {
				return
			}
			if err := cp.Write(snap); err != nil {
				logger.Printf("[checkpoint] write failed: %v", err)
				return
			}
			written = snap.Version
		}

		for {
			select {
			case <-ctx.Done():
				write()
				return
			case <-t.C:
				write()
			}
		}
	}()
	return done
}
