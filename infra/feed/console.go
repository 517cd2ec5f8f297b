package feed

import (
	"bufio"
	"context"
	"io"
	"log"
)

// Writer is a feed that accepts outbound frames, such as an Adapter.
type Writer interface {
	Exchange() string
	Send(ctx context.Context, msg []byte) error
}

// ForwardLines sends every non-empty line of r to every target, so an
// operator can type raw subscribe commands into a running process. It
// returns at EOF or, between lines, once ctx is done. A failed send is
// logged and does not stop the others.
func ForwardLines(ctx context.Context, r io.Reader, logger *log.Logger, targets ...Writer) error {
	if logger == nil {
		logger = log.Default()
	}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		for _, w := range targets {
			// each send gets its own copy; the scanner reuses its buffer
			msg := append([]byte(nil), line...)
			if err := w.Send(ctx, msg); err != nil {
				logger.Printf("[feed] %s: forward line: %v", w.Exchange(), err)
			}
		}
	}
	return sc.Err()
}
