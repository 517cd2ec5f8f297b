package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble"

	"aggregator/api/pb"
	"aggregator/infra/store"
)

var ErrCorrupt = errors.New("snapshot: corrupt checkpoint")

const (
	summaryPrefix = "summary/"
	versionKey    = "meta/version"
)

// Checkpoint is an open pebble checkpoint directory.
type Checkpoint struct {
	db *pebble.DB
}

func Open(dir string) (*Checkpoint, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %s: %w", dir, err)
	}
	return &Checkpoint{db: db}, nil
}

func (c *Checkpoint) Close() error {
	return c.db.Close()
}

// Write stores every entry of snap and its version in one synced batch.
// Exchanges absent from snap are left untouched: the store never
// deletes entries either.
func (c *Checkpoint) Write(snap store.Snapshot) error {
	batch := c.db.NewBatch()
	defer batch.Close()

	for _, e := range snap.Entries {
		val, err := pb.FromBook(e.Summary).MarshalWire()
		if err != nil {
			return fmt.Errorf("snapshot: encode %s: %w", e.Exchange, err)
		}
		if err := batch.Set(keyFor(e.Exchange), val, nil); err != nil {
			return err
		}
	}

	var ver [8]byte
	binary.BigEndian.PutUint64(ver[:], snap.Version)
	if err := batch.Set([]byte(versionKey), ver[:], nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

// Load reads the checkpoint back. An empty directory yields an empty
// snapshot with version 0.
func (c *Checkpoint) Load() (store.Snapshot, error) {
	var snap store.Snapshot

	val, closer, err := c.db.Get([]byte(versionKey))
	switch {
	case errors.Is(err, pebble.ErrNotFound):
	case err != nil:
		return snap, err
	default:
		if len(val) != 8 {
			closer.Close()
			return snap, ErrCorrupt
		}
		snap.Version = binary.BigEndian.Uint64(val)
		closer.Close()
	}

	iter, err := c.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(summaryPrefix),
		UpperBound: []byte("summary0"), // '0' follows '/'
	})
	if err != nil {
		return snap, err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		exchange := strings.TrimPrefix(string(iter.Key()), summaryPrefix)
		var sum pb.Summary
		if err := sum.UnmarshalWire(iter.Value()); err != nil {
			return snap, fmt.Errorf("%w: %s: %v", ErrCorrupt, exchange, err)
		}
		snap.Entries = append(snap.Entries, store.Entry{Exchange: exchange, Summary: sum.ToBook()})
	}
	return snap, iter.Error()
}

func keyFor(exchange string) []byte {
	return []byte(summaryPrefix + exchange)
}
