package sstable

import (
	"bytes"
	"fmt"
	"io"
	"iter"
	"os"
	"sort"

	"github.com/flarekv/lsm/codec"
)

// Reader serves point lookups, bounded range scans, and full iteration
// over one SSTable file. Open validates the footer checksum and loads
// the sparse index into memory; Get, Range, and IterateAll never touch
// the data region until asked, and read it with ReadAt so concurrent
// callers need no external locking.
type Reader struct {
	f            *os.File
	numEntries   uint64
	dataStart    int64
	indexOffset  int64
	footerOffset int64
	index        []indexEntry
}

// Open validates magic, version, and footer CRC, loads the sparse
// index, and returns a Reader ready to serve lookups. A mismatch in
// any of those checks returns ErrCorrupt.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sstable: open %s: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	size := fi.Size()
	if size < headerSize+footerSize {
		_ = f.Close()
		return nil, fmt.Errorf("sstable: %s: %w: file too short", path, ErrCorrupt)
	}

	header := make([]byte, headerSize)
	if _, err := f.ReadAt(header, 0); err != nil {
		_ = f.Close()
		return nil, err
	}
	magic := codec.Uint64(header[0:8])
	version := codec.Uint32(header[8:12])
	numEntries := codec.Uint64(header[12:20])
	if magic != Magic {
		_ = f.Close()
		return nil, fmt.Errorf("sstable: %s: %w: bad magic", path, ErrCorrupt)
	}
	if version != Version {
		_ = f.Close()
		return nil, fmt.Errorf("sstable: %s: %w: unsupported version %d", path, ErrCorrupt, version)
	}

	footerOffset := size - footerSize
	footer := make([]byte, footerSize)
	if _, err := f.ReadAt(footer, footerOffset); err != nil {
		_ = f.Close()
		return nil, err
	}
	indexOffset := int64(codec.Uint64(footer[0:8]))
	// The footer's CRC field is 8 bytes wide but holds a zero-extended
	// CRC-32 (spec §9): compare the full 8 bytes against the recomputed
	// checksum zero-extended the same way, so a flipped byte anywhere in
	// the field — including its zeroed high half — is caught rather than
	// silently masked away.
	storedCRCField := codec.Uint64(footer[8:16])

	if indexOffset < headerSize || indexOffset > footerOffset {
		_ = f.Close()
		return nil, fmt.Errorf("sstable: %s: %w: index offset out of range", path, ErrCorrupt)
	}

	hash := codec.NewChecksum()
	if _, err := io.Copy(hash, io.NewSectionReader(f, 0, footerOffset)); err != nil {
		_ = f.Close()
		return nil, err
	}
	if uint64(hash.Sum32()) != storedCRCField {
		_ = f.Close()
		return nil, fmt.Errorf("sstable: %s: %w: footer checksum mismatch", path, ErrCorrupt)
	}

	index, err := parseIndex(f, indexOffset, footerOffset)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("sstable: %s: %w", path, err)
	}

	return &Reader{
		f:            f,
		numEntries:   numEntries,
		dataStart:    headerSize,
		indexOffset:  indexOffset,
		footerOffset: footerOffset,
		index:        index,
	}, nil
}

func parseIndex(f *os.File, start, end int64) ([]indexEntry, error) {
	var entries []indexEntry
	off := start
	for off < end {
		lenBuf := make([]byte, 4)
		if _, err := f.ReadAt(lenBuf, off); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		keySize := codec.Uint32(lenBuf)
		if keySize == 0 || keySize > MaxKeyBytes {
			return nil, fmt.Errorf("%w: bad index key length %d", ErrCorrupt, keySize)
		}
		rest := make([]byte, int(keySize)+8)
		if _, err := f.ReadAt(rest, off+4); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		key := append([]byte(nil), rest[:keySize]...)
		dataOffset := codec.Uint64(rest[keySize:])
		entries = append(entries, indexEntry{key: key, offset: dataOffset})
		off += 4 + int64(keySize) + 8
	}
	if off != end {
		return nil, fmt.Errorf("%w: index region misaligned", ErrCorrupt)
	}
	return entries, nil
}

// readRecordAt decodes one data record at offset, returning it and the
// offset of the record immediately following it.
func (r *Reader) readRecordAt(offset int64) (Entry, int64, error) {
	hdr := make([]byte, 8)
	if _, err := r.f.ReadAt(hdr, offset); err != nil {
		return Entry{}, 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	keySize := codec.Uint32(hdr[0:4])
	valueSizeField := codec.Uint32(hdr[4:8])
	if keySize == 0 || keySize > MaxKeyBytes {
		return Entry{}, 0, fmt.Errorf("%w: bad record key length %d", ErrCorrupt, keySize)
	}

	tombstone := valueSizeField == tombstoneSentinel
	var valueSize uint32
	if !tombstone {
		valueSize = valueSizeField
		if valueSize > MaxValueBytes {
			return Entry{}, 0, fmt.Errorf("%w: bad record value length %d", ErrCorrupt, valueSize)
		}
	}

	body := make([]byte, int(keySize)+int(valueSize))
	if _, err := r.f.ReadAt(body, offset+8); err != nil {
		return Entry{}, 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	entry := Entry{Key: body[:keySize], Tombstone: tombstone}
	if !tombstone {
		entry.Value = body[keySize:]
	}
	next := offset + 8 + int64(keySize) + int64(valueSize)
	return entry, next, nil
}

// floorIndex returns the index of the rightmost sparse-index entry whose
// key is <= target, or -1 if target is smaller than every key in the
// table.
func (r *Reader) floorIndex(target []byte) int {
	j := sort.Search(len(r.index), func(i int) bool {
		return bytes.Compare(r.index[i].key, target) > 0
	})
	return j - 1
}

// Get looks up key and reports whether it is Present (with its value),
// Deleted (a tombstone shadows it), or Absent (never written to this
// table).
func (r *Reader) Get(key []byte) ([]byte, LookupStatus, error) {
	if len(r.index) == 0 {
		return nil, Absent, nil
	}
	i := r.floorIndex(key)
	if i < 0 {
		return nil, Absent, nil
	}

	boundary := r.indexOffset
	if i+1 < len(r.index) {
		boundary = int64(r.index[i+1].offset)
	}

	for off := int64(r.index[i].offset); off < boundary; {
		entry, next, err := r.readRecordAt(off)
		if err != nil {
			return nil, Absent, err
		}
		switch cmp := bytes.Compare(entry.Key, key); {
		case cmp == 0:
			if entry.Tombstone {
				return nil, Deleted, nil
			}
			return entry.Value, Present, nil
		case cmp > 0:
			return nil, Absent, nil
		}
		off = next
	}
	return nil, Absent, nil
}

// IterateAll yields every record in the table in ascending key order.
func (r *Reader) IterateAll() iter.Seq2[Entry, error] {
	return r.scan(r.dataStart, r.indexOffset, nil, nil)
}

// Range yields records with key >= lo (or from the start, if lo is nil)
// and key < hi (or to the end, if hi is nil).
func (r *Reader) Range(lo, hi []byte) iter.Seq2[Entry, error] {
	start := r.dataStart
	if lo != nil {
		if i := r.floorIndex(lo); i >= 0 {
			start = int64(r.index[i].offset)
		}
	}
	return r.scan(start, r.indexOffset, lo, hi)
}

func (r *Reader) scan(start, end int64, lo, hi []byte) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for off := start; off < end; {
			entry, next, err := r.readRecordAt(off)
			if err != nil {
				yield(Entry{}, err)
				return
			}
			off = next
			if lo != nil && bytes.Compare(entry.Key, lo) < 0 {
				continue
			}
			if hi != nil && bytes.Compare(entry.Key, hi) >= 0 {
				return
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// NumEntries returns the number of records the header declares.
func (r *Reader) NumEntries() uint64 {
	return r.numEntries
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return r.f.Close()
}
