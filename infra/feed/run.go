package feed

import (
	"context"
	"errors"
	"log"
	"sync"
)

// Source delivers payloads from one transport to a Handler.
type Source interface {
	Run(ctx context.Context, h Handler) error
}

// Feed pairs a handler with the source that drives it.
type Feed struct {
	Handler Handler
	Source  Source
}

// Run starts every feed in its own goroutine and waits for all of
// them. A feed that fails is logged and left stopped; the others keep
// running.
func Run(ctx context.Context, logger *log.Logger, feeds ...Feed) {
	if logger == nil {
		logger = log.Default()
	}

	var wg sync.WaitGroup
	for _, f := range feeds {
		wg.Add(1)
		go func(f Feed) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.Printf("[feed] %s: panic: %v", f.Handler.Exchange(), r)
				}
			}()

			err := f.Source.Run(ctx, f.Handler)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Printf("[feed] %s stopped: %v", f.Handler.Exchange(), err)
				return
			}
			logger.Printf("[feed] %s stopped", f.Handler.Exchange())
		}(f)
	}
	wg.Wait()
}
