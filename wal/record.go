package wal

import (
	"io"

	"github.com/flarekv/lsm/codec"
)

// Record is one decoded mutation: a put (Tombstone == false, Value holds
// the bytes) or a delete (Tombstone == true, Value is nil).
//
// Binary format (all fields contiguous, little-endian):
//
//	timestamp(8) | key_size(4) | value_size(4) | key(n) | value(m) | crc32(4)
//
// value_size is the sentinel 0xFFFFFFFF for a tombstone, in which case no
// value bytes follow. The CRC covers every byte of the record preceding it.
type Record struct {
	Timestamp uint64
	Key       []byte
	Value     []byte
	Tombstone bool
}

// NewPut builds a put record. ts is the caller-assigned microsecond timestamp.
func NewPut(ts uint64, key, value []byte) Record {
	return Record{Timestamp: ts, Key: key, Value: value}
}

// NewDelete builds a tombstone record.
func NewDelete(ts uint64, key []byte) Record {
	return Record{Timestamp: ts, Key: key, Tombstone: true}
}

// Encode writes r to w and returns the number of bytes written.
func (r Record) Encode(w io.Writer) (int64, error) {
	if len(r.Key) == 0 || len(r.Key) > MaxKeyBytes {
		return 0, ErrKeyTooLarge
	}
	if !r.Tombstone && len(r.Value) > MaxValueBytes {
		return 0, ErrValueTooLarge
	}

	crc := codec.NewChecksum()
	mw := io.MultiWriter(w, crc)

	if err := codec.PutUint64(mw, r.Timestamp); err != nil {
		return 0, err
	}
	if err := codec.PutUint32(mw, uint32(len(r.Key))); err != nil {
		return 0, err
	}

	valueSize := uint32(tombstoneSentinel)
	if !r.Tombstone {
		valueSize = uint32(len(r.Value))
	}
	if err := codec.PutUint32(mw, valueSize); err != nil {
		return 0, err
	}

	if _, err := mw.Write(r.Key); err != nil {
		return 0, err
	}
	if !r.Tombstone {
		if _, err := mw.Write(r.Value); err != nil {
			return 0, err
		}
	}

	if err := codec.PutUint32(w, crc.Sum32()); err != nil {
		return 0, err
	}

	n := int64(headerSize+len(r.Key)) + 4
	if !r.Tombstone {
		n += int64(len(r.Value))
	}
	return n, nil
}

// Decode reads one record from r.
//
// On a clean end of log, or an incomplete trailing record (the expected
// crash signature — see package doc), it returns io.EOF. Any other
// failure to validate (bad declared sizes, CRC mismatch on a complete
// record) returns ErrCorrupt; the caller MUST treat that as corruption,
// not as a truncation boundary.
func Decode(r io.Reader) (Record, int64, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return Record{}, 0, cleanEOF(err)
	}

	ts := codec.Uint64(header[0:8])
	keySize := codec.Uint32(header[8:12])
	valueSizeField := codec.Uint32(header[12:16])
	tombstone := valueSizeField == tombstoneSentinel

	if keySize == 0 || keySize > MaxKeyBytes {
		return Record{}, 0, ErrCorrupt
	}
	if !tombstone && valueSizeField > MaxValueBytes {
		return Record{}, 0, ErrCorrupt
	}

	payload := make([]byte, int(keySize)+valueLen(tombstone, valueSizeField))
	if _, err := io.ReadFull(r, payload); err != nil {
		return Record{}, 0, cleanEOF(err)
	}

	var storedCRC uint32
	crcBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, crcBuf); err != nil {
		return Record{}, 0, cleanEOF(err)
	}
	storedCRC = codec.Uint32(crcBuf)

	full := make([]byte, 0, headerSize+len(payload))
	full = append(full, header...)
	full = append(full, payload...)
	if codec.Checksum(full) != storedCRC {
		return Record{}, 0, ErrCorrupt
	}

	key := append([]byte(nil), payload[:keySize]...)
	rec := Record{Timestamp: ts, Key: key, Tombstone: tombstone}
	if !tombstone {
		rec.Value = append([]byte(nil), payload[keySize:]...)
	}

	n := int64(headerSize+len(payload)) + 4
	return rec, n, nil
}

func valueLen(tombstone bool, valueSizeField uint32) int {
	if tombstone {
		return 0
	}
	return int(valueSizeField)
}

func cleanEOF(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return io.EOF
	}
	return err
}
