package journal

import (
	"context"
	"log"
	"time"

	"aggregator/infra/feed"
)

// Recorder wraps a Handler and appends every inbound payload to the
// journal before handing it on.
type Recorder struct {
	feed.Handler
	j      *Journal
	logger *log.Logger
}

func NewRecorder(h feed.Handler, j *Journal, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{Handler: h, j: j, logger: logger}
}

func (r *Recorder) OnMessage(ctx context.Context, payload []byte) error {
	if _, err := r.j.Append(r.Exchange(), payload); err != nil {
		// losing the recording must not stop the live feed
		r.logger.Printf("[journal] %s: append: %v", r.Exchange(), err)
	}
	return r.Handler.OnMessage(ctx, payload)
}

// ReplaySource feeds a handler the journaled payloads recorded for its
// exchange, then returns.
type ReplaySource struct {
	dir string
	// Pace sleeps the recorded gap between records when true.
	pace   bool
	logger *log.Logger
}

func NewReplaySource(dir string, pace bool, logger *log.Logger) *ReplaySource {
	if logger == nil {
		logger = log.Default()
	}
	return &ReplaySource{dir: dir, pace: pace, logger: logger}
}

func (s *ReplaySource) Run(ctx context.Context, h feed.Handler) error {
	if err := h.OnConnect(ctx, nil); err != nil {
		return err
	}

	var (
		prev  int64
		count int
	)
	_, err := Replay(s.dir, func(rec *Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if rec.Exchange != h.Exchange() {
			return nil
		}
		if s.pace && prev != 0 && rec.Time > prev {
			t := time.NewTimer(time.Duration(rec.Time - prev))
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		prev = rec.Time
		count++
		return h.OnMessage(ctx, rec.Payload)
	})
	if err != nil {
		return err
	}
	s.logger.Printf("[journal] %s: replayed %d records from %s", h.Exchange(), count, s.dir)
	return nil
}
