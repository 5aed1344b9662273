package sstable

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/flarekv/lsm/codec"
)

type indexEntry struct {
	key    []byte
	offset uint64
}

// Writer produces one immutable SSTable file. It moves through the
// states Fresh -> Writing -> Finalized: Add is only valid in Writing,
// Finalize is only valid in Writing, and any operation after Finalize
// returns ErrInvariant.
//
// Writer writes directly to the path it was given; atomic publication
// (temp name, rename after a successful Finalize) is the caller's
// responsibility, per spec §4.4 — Finalize's doc note that the file "MAY
// be renamed atomically into its final path by the caller".
type Writer struct {
	f          *os.File
	offset     int64
	numEntries uint64
	lastKey    []byte
	hasLast    bool
	index      []indexEntry
	finalized  bool
}

// Create opens path for writing and lays down a placeholder header
// (num_entries = 0), which Finalize rewrites once the true count is known.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sstable: create %s: %w", path, err)
	}

	w := &Writer{f: f}
	if err := w.writeHeader(0); err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) writeHeader(numEntries uint64) error {
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := codec.PutUint64(w.f, Magic); err != nil {
		return err
	}
	if err := codec.PutUint32(w.f, Version); err != nil {
		return err
	}
	if err := codec.PutUint64(w.f, numEntries); err != nil {
		return err
	}
	if err := codec.PutUint32(w.f, 0); err != nil { // reserved
		return err
	}
	if _, err := w.f.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	if w.offset < headerSize {
		w.offset = headerSize
	}
	return nil
}

// Add appends one data record. Callers MUST call Add in strictly
// ascending key order; a duplicate or out-of-order key returns
// ErrInvariant instead of being written.
func (w *Writer) Add(key, value []byte, tombstone bool) error {
	if w.finalized {
		return ErrInvariant
	}
	if len(key) == 0 || len(key) > MaxKeyBytes {
		return fmt.Errorf("%w: key length %d out of bounds", ErrInvariant, len(key))
	}
	if !tombstone && len(value) > MaxValueBytes {
		return fmt.Errorf("%w: value length %d out of bounds", ErrInvariant, len(value))
	}
	if w.hasLast && bytes.Compare(key, w.lastKey) <= 0 {
		return fmt.Errorf("%w: key %q out of order after %q", ErrInvariant, key, w.lastKey)
	}

	recordOffset := uint64(w.offset)
	if w.numEntries%IndexInterval == 0 {
		w.index = append(w.index, indexEntry{key: append([]byte(nil), key...), offset: recordOffset})
	}

	valueSize := uint32(tombstoneSentinel)
	if !tombstone {
		valueSize = uint32(len(value))
	}

	if err := codec.PutUint32(w.f, uint32(len(key))); err != nil {
		return err
	}
	if err := codec.PutUint32(w.f, valueSize); err != nil {
		return err
	}
	if _, err := w.f.Write(key); err != nil {
		return err
	}
	n := int64(4 + 4 + len(key))
	if !tombstone {
		if _, err := w.f.Write(value); err != nil {
			return err
		}
		n += int64(len(value))
	}

	w.offset += n
	w.numEntries++
	w.lastKey = append(w.lastKey[:0], key...)
	w.hasLast = true
	return nil
}

// Finalize writes the sparse index, rewrites the header with the final
// entry count, computes the footer CRC over every byte preceding it, and
// fsyncs the file. Finalizing an already-finalized writer is ErrInvariant.
func (w *Writer) Finalize() error {
	if w.finalized {
		return ErrInvariant
	}

	indexOffset := w.offset
	for _, e := range w.index {
		if err := codec.PutUint32(w.f, uint32(len(e.key))); err != nil {
			return err
		}
		if _, err := w.f.Write(e.key); err != nil {
			return err
		}
		if err := codec.PutUint64(w.f, e.offset); err != nil {
			return err
		}
		w.offset += int64(4+len(e.key)) + 8
	}

	if err := w.writeHeader(w.numEntries); err != nil {
		return err
	}

	crc, err := w.checksumPrefix(w.offset)
	if err != nil {
		return err
	}

	if err := codec.PutUint64(w.f, uint64(indexOffset)); err != nil {
		return err
	}
	// The footer's CRC field is 8 bytes wide; per spec §9 we store a
	// zero-extended CRC-32 rather than a true 64-bit checksum.
	if err := codec.PutUint64(w.f, uint64(crc)); err != nil {
		return err
	}

	if err := w.f.Sync(); err != nil {
		return err
	}
	w.finalized = true
	return w.f.Close()
}

// checksumPrefix computes the CRC-32 over file bytes [0, n).
func (w *Writer) checksumPrefix(n int64) (uint32, error) {
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	hash := codec.NewChecksum()
	if _, err := io.CopyN(hash, w.f, n); err != nil {
		return 0, err
	}
	if _, err := w.f.Seek(0, io.SeekEnd); err != nil {
		return 0, err
	}
	return hash.Sum32(), nil
}
