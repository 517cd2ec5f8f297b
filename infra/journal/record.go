package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"time"
)

// ErrCorrupt is returned for a frame whose checksum or header is bad.
var ErrCorrupt = errors.New("journal: corrupt record")

// Frame:
// [seq:8][time:8][exlen:1][len:4][exchange][payload][crc:4]
const headerSize = 8 + 8 + 1 + 4

const maxPayload = 16 << 20

// Record is one raw feed payload as it arrived.
type Record struct {
	Seq      uint64
	Time     int64 // unix nanos
	Exchange string
	Payload  []byte
}

func NewRecord(seq uint64, exchange string, payload []byte) *Record {
	return &Record{
		Seq:      seq,
		Time:     time.Now().UnixNano(),
		Exchange: exchange,
		Payload:  payload,
	}
}

func (r *Record) encode() ([]byte, error) {
	if len(r.Exchange) > 255 {
		return nil, fmt.Errorf("journal: exchange name %q too long", r.Exchange)
	}
	if len(r.Payload) > maxPayload {
		return nil, fmt.Errorf("journal: payload of %d bytes too large", len(r.Payload))
	}

	body := len(r.Exchange) + len(r.Payload)
	buf := make([]byte, headerSize+body+4)
	binary.BigEndian.PutUint64(buf[0:8], r.Seq)
	binary.BigEndian.PutUint64(buf[8:16], uint64(r.Time))
	buf[16] = byte(len(r.Exchange))
	binary.BigEndian.PutUint32(buf[17:21], uint32(len(r.Payload)))
	n := copy(buf[headerSize:], r.Exchange)
	copy(buf[headerSize+n:], r.Payload)

	crc := crc32.ChecksumIEEE(buf[:headerSize+body])
	binary.BigEndian.PutUint32(buf[headerSize+body:], crc)
	return buf, nil
}

// readRecord returns io.EOF at a clean end and io.ErrUnexpectedEOF for
// a frame cut short by a crash.
func readRecord(r io.Reader) (*Record, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	exLen := int(header[16])
	payloadLen := binary.BigEndian.Uint32(header[17:21])
	if payloadLen > maxPayload {
		return nil, fmt.Errorf("%w: payload length %d", ErrCorrupt, payloadLen)
	}

	rest := make([]byte, exLen+int(payloadLen)+4)
	if _, err := io.ReadFull(r, rest); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	body := rest[:len(rest)-4]
	crc := binary.BigEndian.Uint32(rest[len(rest)-4:])
	h := crc32.NewIEEE()
	h.Write(header)
	h.Write(body)
	if h.Sum32() != crc {
		return nil, fmt.Errorf("%w: crc mismatch", ErrCorrupt)
	}

	return &Record{
		Seq:      binary.BigEndian.Uint64(header[0:8]),
		Time:     int64(binary.BigEndian.Uint64(header[8:16])),
		Exchange: string(body[:exLen]),
		Payload:  body[exLen:],
	}, nil
}
