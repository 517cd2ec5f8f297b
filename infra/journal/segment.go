package journal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

const segmentGlob = "segment-*.log"

type segmentFile interface {
	io.Writer
	Sync() error
	Close() error
	Truncate(size int64) error
}

type segment struct {
	file   segmentFile
	offset int64
}

func segmentPath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("segment-%06d.log", index))
}

func openSegment(dir string, index int) (*segment, error) {
	f, err := os.OpenFile(segmentPath(dir, index), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &segment{file: f, offset: st.Size()}, nil
}

// append writes one whole frame. A short write is cut back to the last
// frame boundary when the file allows it.
func (s *segment) append(b []byte) error {
	good := s.offset
	n, err := s.file.Write(b)
	s.offset += int64(n)
	if err == nil {
		return nil
	}
	if n > 0 {
		if terr := s.file.Truncate(good); terr == nil {
			s.offset = good
		}
	}
	return err
}

func (s *segment) sync() error { return s.file.Sync() }

func (s *segment) close() error { return s.file.Close() }

// segments lists segment files in write order.
func segments(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, segmentGlob))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func segmentIndex(path string) (int, bool) {
	var idx int
	if _, err := fmt.Sscanf(filepath.Base(path), "segment-%06d.log", &idx); err != nil {
		return 0, false
	}
	return idx, true
}
