package wal

import (
	"io"
	"iter"
	"os"
)

// Reader shares read-only access to a WAL file; it is used during
// recovery, before the store resumes appending.
type Reader struct {
	f *os.File
}

// OpenReader opens path for sequential replay.
func OpenReader(path string) (*Reader, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Reader{f: f}, nil
}

// Iterate produces a finite lazy sequence of decoded records from the
// file's beginning. A clean end of log or an incomplete trailing record
// ends the sequence with no error delivered to yield; a record that fails
// its CRC without being truncated is delivered once as (Record{}, err)
// and the sequence stops there — that corruption must surface to the
// caller, per spec §7.
func (r *Reader) Iterate() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for {
			rec, _, err := Decode(r.f)
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(Record{}, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// Reset repositions the reader at the start of the file.
func (r *Reader) Reset() error {
	_, err := r.f.Seek(0, io.SeekStart)
	return err
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return r.f.Close()
}
