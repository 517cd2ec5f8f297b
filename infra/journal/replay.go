package journal

import (
	"errors"
	"fmt"
	"io"
	"os"
)

type ReplayHandler func(*Record) error

// Replay walks every segment in order. A frame cut short at the end of
// a segment ends that segment; sequences must increase strictly.
func Replay(dir string, fn ReplayHandler) (lastSeq uint64, err error) {
	files, err := segments(dir)
	if err != nil {
		return 0, err
	}

	for _, path := range files {
		if lastSeq, err = replaySegment(path, lastSeq, fn); err != nil {
			return lastSeq, err
		}
	}
	return lastSeq, nil
}

func replaySegment(path string, lastSeq uint64, fn ReplayHandler) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return lastSeq, err
	}
	defer f.Close()

	for {
		rec, err := readRecord(f)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return lastSeq, nil
			}
			return lastSeq, fmt.Errorf("%s: %w", path, err)
		}

		if rec.Seq <= lastSeq {
			return lastSeq, fmt.Errorf("%w: non-monotonic seq %d after %d", ErrCorrupt, rec.Seq, lastSeq)
		}
		lastSeq = rec.Seq

		if err := fn(rec); err != nil {
			return lastSeq, err
		}
	}
}

// maxSeqInSegment returns the highest sequence in one segment.
func maxSeqInSegment(path string) (uint64, error) {
	var max uint64
	_, err := replaySegment(path, 0, func(r *Record) error {
		max = r.Seq
		return nil
	})
	return max, err
}
