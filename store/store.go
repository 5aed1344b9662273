// Package store composes the write-ahead log, memtable, and SSTable
// layers into a single embeddable key-value engine: every mutation is
// appended to the WAL before it lands in the memtable, a full memtable is
// flushed to an immutable SSTable and the WAL is truncated, and Get
// consults the memtable first, then SSTables newest-to-oldest, stopping
// at the first tombstone or value it finds.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/flarekv/lsm/memtable"
	"github.com/flarekv/lsm/sstable"
	"github.com/flarekv/lsm/wal"
)

// ErrClosed is returned by any operation attempted after Close.
var ErrClosed = errors.New("store: closed")

// ErrKeyEmpty is returned by Put/Delete/Get for a zero-length key.
var ErrKeyEmpty = errors.New("store: key must not be empty")

// Stats summarizes a Store's current shape, mainly for operator tooling.
type Stats struct {
	MemtableEntries   int
	MemtableSizeBytes int
	SSTableCount      int
	WALSizeBytes      int64
}

type tableHandle struct {
	id     uint64
	path   string
	r      *sstable.Reader
	filter *bloom.BloomFilter
}

// Store is a single-writer, multi-reader embedded key-value engine
// rooted at one directory. It is safe for concurrent use; all mutating
// calls are serialized internally.
type Store struct {
	mu     sync.Mutex
	closed bool

	dir     string
	sstDir  string
	walPath string

	opts Options
	w    *wal.Writer
	mem  *memtable.Memtable

	nextID uint64
	// tables is ordered oldest-first; the newest table (most recently
	// flushed) is last and is consulted first on a miss in the memtable.
	tables []*tableHandle
}

// Open creates dir if absent, replays any existing WAL into a fresh
// memtable, opens every existing SSTable (building its Bloom
// accelerator), and resumes appending to the WAL at its current length.
func Open(dir string, opts Options) (*Store, error) {
	opts = opts.withDefaults()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: mkdir %s: %w", dir, err)
	}
	// SSTables live directly in dir, alongside wal.log, per the data
	// directory layout documented in SPEC_FULL.md §6.
	sstDir := dir
	walPath := filepath.Join(dir, "wal.log")

	mem := memtable.NewWithThreshold(opts.MemtableFlushThresholdBytes)
	if err := replayWAL(walPath, mem); err != nil {
		return nil, err
	}

	w, err := wal.Open(walPath)
	if err != nil {
		return nil, fmt.Errorf("store: open wal: %w", err)
	}

	ids, nextID, err := scanSSTables(sstDir)
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("store: scan sstables: %w", err)
	}

	tables := make([]*tableHandle, 0, len(ids))
	for _, id := range ids {
		th, err := openTable(sstDir, id, opts.BloomFalsePositiveRate)
		if err != nil {
			for _, t := range tables {
				_ = t.r.Close()
			}
			_ = w.Close()
			return nil, err
		}
		tables = append(tables, th)
	}

	return &Store{
		dir:     dir,
		sstDir:  sstDir,
		walPath: walPath,
		opts:    opts,
		w:       w,
		mem:     mem,
		nextID:  nextID,
		tables:  tables,
	}, nil
}

func replayWAL(path string, mem *memtable.Memtable) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	r, err := wal.OpenReader(path)
	if err != nil {
		return fmt.Errorf("store: open wal for replay: %w", err)
	}
	defer r.Close()

	for rec, err := range r.Iterate() {
		if err != nil {
			return fmt.Errorf("store: replay wal: %w", err)
		}
		if rec.Tombstone {
			_ = mem.Delete(rec.Key)
		} else {
			_ = mem.Put(rec.Key, rec.Value)
		}
	}
	return nil
}

func openTable(dir string, id uint64, bloomFPRate float64) (*tableHandle, error) {
	path := filepath.Join(dir, sstFileName(id))
	r, err := sstable.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	var filter *bloom.BloomFilter
	if bloomFPRate > 0 {
		var keys [][]byte
		for e, err := range r.IterateAll() {
			if err != nil {
				_ = r.Close()
				return nil, fmt.Errorf("store: scan %s: %w", path, err)
			}
			keys = append(keys, e.Key)
		}
		filter = buildBloomFilter(keys, bloomFPRate)
	}

	return &tableHandle{id: id, path: path, r: r, filter: filter}, nil
}

// Put durably writes key -> value, replacing any prior value or
// tombstone for key, and flushes to a new SSTable if the memtable
// crosses its configured threshold afterward.
func (s *Store) Put(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if len(key) == 0 {
		return ErrKeyEmpty
	}
	if err := s.w.Append(key, value, false); err != nil {
		return err
	}
	if err := s.mem.Put(key, value); err != nil {
		return err
	}
	return s.maybeFlushLocked()
}

// Delete durably records a tombstone for key, shadowing any older value
// in the memtable or an SSTable, and flushes if the memtable is now full.
func (s *Store) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if len(key) == 0 {
		return ErrKeyEmpty
	}
	if err := s.w.Append(key, nil, true); err != nil {
		return err
	}
	if err := s.mem.Delete(key); err != nil {
		return err
	}
	return s.maybeFlushLocked()
}

// Get returns (value, true, nil) if key has a live value, (nil, false,
// nil) if key was never written or the latest write was a delete, and a
// non-nil error only on I/O or corruption failure.
func (s *Store) Get(key []byte) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false, ErrClosed
	}
	if len(key) == 0 {
		return nil, false, ErrKeyEmpty
	}

	if v, status := s.mem.Get(key); status != memtable.Absent {
		return presentResult(v, status)
	}

	for i := len(s.tables) - 1; i >= 0; i-- {
		t := s.tables[i]
		if t.filter != nil && !t.filter.Test(key) {
			continue
		}
		v, status, err := t.r.Get(key)
		if err != nil {
			return nil, false, fmt.Errorf("store: get from %s: %w", t.path, err)
		}
		if status == sstable.Absent {
			continue
		}
		return presentResultSST(v, status)
	}

	return nil, false, nil
}

func presentResult(v []byte, status memtable.LookupStatus) ([]byte, bool, error) {
	if status == memtable.Deleted {
		return nil, false, nil
	}
	return v, true, nil
}

func presentResultSST(v []byte, status sstable.LookupStatus) ([]byte, bool, error) {
	if status == sstable.Deleted {
		return nil, false, nil
	}
	return v, true, nil
}

// maybeFlushLocked flushes the current memtable to a new SSTable and
// truncates the WAL if the memtable has reached its threshold. Callers
// must hold s.mu.
func (s *Store) maybeFlushLocked() error {
	if !s.mem.IsFull() {
		return nil
	}

	id := s.nextID
	path := filepath.Join(s.sstDir, sstFileName(id))
	tmpPath := path + ".tmp"

	w, err := sstable.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("store: create %s: %w", tmpPath, err)
	}
	for e := range s.mem.IterateSorted() {
		if err := w.Add(e.Key, e.Value.Bytes, e.Value.Tombstone); err != nil {
			return fmt.Errorf("store: flush %s: %w", tmpPath, err)
		}
	}
	if err := w.Finalize(); err != nil {
		return fmt.Errorf("store: finalize %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("store: publish %s: %w", path, err)
	}

	th, err := openTable(s.sstDir, id, s.opts.BloomFalsePositiveRate)
	if err != nil {
		return err
	}

	if err := s.w.Truncate(); err != nil {
		return fmt.Errorf("store: truncate wal: %w", err)
	}

	s.tables = append(s.tables, th)
	s.nextID = id + 1
	s.mem.Clear()
	return nil
}

// Stats reports a snapshot of the store's current shape.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		MemtableEntries:   s.mem.Len(),
		MemtableSizeBytes: s.mem.SizeBytes(),
		SSTableCount:      len(s.tables),
		WALSizeBytes:      s.w.SizeBytes(),
	}
}

// Close flushes no pending state (the WAL already holds everything
// durably) and releases every open file handle. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if err := s.w.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	for _, t := range s.tables {
		if err := t.r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
