package journal

import (
	"context"
	"log"
	"time"
)

type mark struct {
	at  time.Time
	seq uint64
}

// StartRetentionJob drops journal segments whose records are all older
// than keep, checking every interval. It stops when ctx is done.
func StartRetentionJob(ctx context.Context, j *Journal, keep, interval time.Duration, logger *log.Logger) <-chan struct{} {
	if logger == nil {
		logger = log.Default()
	}
	done := make(chan struct{})
	if keep <= 0 {
		close(done)
		return done
	}
	if interval <= 0 || interval > keep {
		interval = keep
	}

	go func() {
		defer close(done)
		t := time.NewTicker(interval)
		defer t.Stop()

		// marks remember which sequence was last at each tick
		marks := []mark{{at: time.Now(), seq: j.LastSeq()}}
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				marks = append(marks, mark{at: now, seq: j.LastSeq()})

				cut := -1
				for i, m := range marks {
					if now.Sub(m.at) >= keep {
						cut = i
					}
				}
				if cut < 0 {
					continue
				}
				if seq := marks[cut].seq; seq > 0 {
					if err := j.TruncateBefore(seq); err != nil {
						logger.Printf("[journal] truncate before %d: %v", seq, err)
						continue
					}
				}
				marks = append(marks[:0], marks[cut+1:]...)
			}
		}
	}()
	return done
}
