package wal

import (
	"io"
	"os"
	"sync"
	"time"
)

// Writer is the sole owner of a WAL file's handle for the duration of its
// life. It is not internally synchronized beyond what's needed to keep a
// single goroutine's Append calls consistent with Close — per spec §5 the
// enclosing store is expected to serialize mutations.
type Writer struct {
	mu      sync.Mutex
	f       *os.File
	size    int64
	lastTS  uint64
	closed  bool
}

// Open creates path if absent and positions the writer at its current end,
// ready to append further records (recovered state, per spec §4.2).
func Open(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	return &Writer{f: f, size: size}, nil
}

// nextTimestamp clamps to max(last+1, now) so a regressing or stalled wall
// clock can never produce two equal or out-of-order timestamps (spec §9).
func (w *Writer) nextTimestamp() uint64 {
	now := uint64(time.Now().UnixMicro())
	ts := now
	if w.lastTS+1 > ts {
		ts = w.lastTS + 1
	}
	w.lastTS = ts
	return ts
}

// Append assigns a timestamp, serializes the record, writes it, then
// flushes and fsyncs the file before returning. A successful return means
// this record and every prior successful Append are durable.
func (w *Writer) Append(key, value []byte, tombstone bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	rec := Record{Timestamp: w.nextTimestamp(), Key: key, Value: value, Tombstone: tombstone}
	n, err := rec.Encode(w.f)
	if err != nil {
		return err
	}
	if err := w.f.Sync(); err != nil {
		return err
	}

	w.size += n
	return nil
}

// Truncate sets the file length to zero and fsyncs. Called after a
// successful flush to SSTable. Truncating an already-empty WAL is a no-op.
func (w *Writer) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.size == 0 {
		return nil
	}

	if err := w.f.Truncate(0); err != nil {
		return err
	}
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := w.f.Sync(); err != nil {
		return err
	}

	w.size = 0
	return nil
}

// SizeBytes returns the current on-disk length.
func (w *Writer) SizeBytes() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Close releases the underlying file handle.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.f.Close()
}
