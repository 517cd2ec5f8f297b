package journal

import (
	"fmt"
	"os"
	"sync"

	"aggregator/infra/sequence"
)

const defaultSegmentSize = 8 << 20

type Config struct {
	Dir         string
	SegmentSize int64
	// Sync fsyncs after every append.
	Sync bool
}

// Journal appends raw feed payloads to size-rotated segment files.
// It is safe for concurrent use by several feeds.
type Journal struct {
	mu       sync.Mutex
	dir      string
	segSize  int64
	sync     bool
	current  *segment
	segIndex int
	seq      *sequence.Sequencer
	closed   bool
}

// Open resumes a journal directory. Appends always start in a fresh
// segment after the last existing one, so a torn tail is never extended.
func Open(cfg Config) (*Journal, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("journal: dir is required")
	}
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = defaultSegmentSize
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	lastSeq, err := Replay(cfg.Dir, func(*Record) error { return nil })
	if err != nil {
		return nil, fmt.Errorf("journal: scan %s: %w", cfg.Dir, err)
	}

	files, err := segments(cfg.Dir)
	if err != nil {
		return nil, err
	}
	next := 0
	if len(files) > 0 {
		if idx, ok := segmentIndex(files[len(files)-1]); ok {
			next = idx + 1
		}
	}

	seg, err := openSegment(cfg.Dir, next)
	if err != nil {
		return nil, err
	}

	return &Journal{
		dir:      cfg.Dir,
		segSize:  cfg.SegmentSize,
		sync:     cfg.Sync,
		current:  seg,
		segIndex: next,
		seq:      sequence.New(lastSeq),
	}, nil
}

// LastSeq returns the sequence of the last appended record.
func (j *Journal) LastSeq() uint64 { return j.seq.Current() }

// Append writes one payload and returns its sequence.
func (j *Journal) Append(exchange string, payload []byte) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return 0, fmt.Errorf("journal: closed")
	}

	rec := NewRecord(j.seq.Current()+1, exchange, payload)
	buf, err := rec.encode()
	if err != nil {
		return 0, err
	}
	if err := j.current.append(buf); err != nil {
		// whatever reached the file is now a torn tail; never write past it
		if rerr := j.rotate(); rerr != nil {
			return 0, fmt.Errorf("journal: append: %w (rotate: %v)", err, rerr)
		}
		return 0, fmt.Errorf("journal: append: %w", err)
	}
	j.seq.Next()

	if j.sync {
		if err := j.current.sync(); err != nil {
			return rec.Seq, err
		}
	}
	if j.current.offset >= j.segSize {
		if err := j.rotate(); err != nil {
			return rec.Seq, err
		}
	}
	return rec.Seq, nil
}

func (j *Journal) rotate() error {
	_ = j.current.sync()
	_ = j.current.close()
	j.segIndex++

	seg, err := openSegment(j.dir, j.segIndex)
	if err != nil {
		return err
	}
	j.current = seg
	return nil
}

// TruncateBefore removes closed segments whose records are all <= seq.
func (j *Journal) TruncateBefore(seq uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	files, err := segments(j.dir)
	if err != nil {
		return err
	}
	for _, path := range files {
		if path == segmentPath(j.dir, j.segIndex) {
			continue
		}
		maxSeq, err := maxSeqInSegment(path)
		if err != nil {
			continue
		}
		if maxSeq <= seq {
			_ = os.Remove(path)
		}
	}
	return nil
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	_ = j.current.sync()
	return j.current.close()
}
