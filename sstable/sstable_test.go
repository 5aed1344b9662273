package sstable

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func buildTable(t *testing.T, dir string, entries []Entry) string {
	t.Helper()
	path := filepath.Join(dir, "000001.sst")
	w, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if err := w.Add(e.Key, e.Value, e.Tombstone); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Finalize(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEmptyTableRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := buildTable(t, dir, nil)

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if r.NumEntries() != 0 {
		t.Fatalf("expected 0 entries, got %d", r.NumEntries())
	}
	if _, status, err := r.Get([]byte("anything")); err != nil || status != Absent {
		t.Fatalf("expected absent/nil, got status=%v err=%v", status, err)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	entries := []Entry{
		{Key: []byte("alpha"), Value: []byte("1")},
		{Key: []byte("bravo"), Value: []byte("2")},
		{Key: []byte("charlie"), Tombstone: true},
		{Key: []byte("delta"), Value: []byte("4")},
	}
	path := buildTable(t, dir, entries)

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if r.NumEntries() != uint64(len(entries)) {
		t.Fatalf("expected %d entries, got %d", len(entries), r.NumEntries())
	}

	for _, e := range entries {
		v, status, err := r.Get(e.Key)
		if err != nil {
			t.Fatal(err)
		}
		if e.Tombstone {
			if status != Deleted {
				t.Fatalf("key %q: expected Deleted, got %v", e.Key, status)
			}
			continue
		}
		if status != Present || !bytes.Equal(v, e.Value) {
			t.Fatalf("key %q: expected present(%q), got status=%v value=%q", e.Key, e.Value, status, v)
		}
	}

	if _, status, err := r.Get([]byte("zulu")); err != nil || status != Absent {
		t.Fatalf("expected absent for missing key, got status=%v err=%v", status, err)
	}
	if _, status, err := r.Get([]byte("aaaa")); err != nil || status != Absent {
		t.Fatalf("expected absent for key before first entry, got status=%v err=%v", status, err)
	}
}

func TestSparseIndexOverHundredKeys(t *testing.T) {
	dir := t.TempDir()
	const n = 100
	var entries []Entry
	for i := 0; i < n; i++ {
		entries = append(entries, Entry{Key: []byte(fmt.Sprintf("key-%04d", i)), Value: []byte(fmt.Sprintf("v%d", i))})
	}
	path := buildTable(t, dir, entries)

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	wantIndexEntries := (n + IndexInterval - 1) / IndexInterval
	if len(r.index) != wantIndexEntries {
		t.Fatalf("expected %d sparse index entries for %d records, got %d", wantIndexEntries, n, len(r.index))
	}

	for _, e := range entries {
		v, status, err := r.Get(e.Key)
		if err != nil || status != Present || !bytes.Equal(v, e.Value) {
			t.Fatalf("key %q: expected present(%q), got status=%v value=%q err=%v", e.Key, e.Value, status, v, err)
		}
	}
}

func TestRangeScanIsHalfOpen(t *testing.T) {
	dir := t.TempDir()
	entries := []Entry{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
		{Key: []byte("c"), Value: []byte("3")},
		{Key: []byte("d"), Value: []byte("4")},
	}
	path := buildTable(t, dir, entries)

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	var got []string
	for e, err := range r.Range([]byte("b"), []byte("d")) {
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, string(e.Key))
	}
	want := []string{"b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestIterateAllAscending(t *testing.T) {
	dir := t.TempDir()
	entries := []Entry{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Tombstone: true},
		{Key: []byte("c"), Value: []byte("3")},
	}
	path := buildTable(t, dir, entries)

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	var got []Entry
	for e, err := range r.IterateAll() {
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, e)
	}
	if len(got) != len(entries) {
		t.Fatalf("expected %d entries, got %d", len(entries), len(got))
	}
	for i := range entries {
		if !bytes.Equal(got[i].Key, entries[i].Key) {
			t.Fatalf("entry %d: expected key %q, got %q", i, entries[i].Key, got[i].Key)
		}
	}
	if !got[1].Tombstone {
		t.Fatal("expected second entry to be a tombstone")
	}
}

func TestAddRejectsOutOfOrderKeys(t *testing.T) {
	dir := t.TempDir()
	w, err := Create(filepath.Join(dir, "000001.sst"))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Add([]byte("b"), []byte("1"), false); err != nil {
		t.Fatal(err)
	}
	if err := w.Add([]byte("a"), []byte("2"), false); err == nil {
		t.Fatal("expected ErrInvariant for out-of-order key")
	}
	if err := w.Add([]byte("b"), []byte("2"), false); err == nil {
		t.Fatal("expected ErrInvariant for duplicate key")
	}
}

func TestFinalizeTwiceIsInvariantViolation(t *testing.T) {
	dir := t.TempDir()
	w, err := Create(filepath.Join(dir, "000001.sst"))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Add([]byte("a"), []byte("1"), false); err != nil {
		t.Fatal(err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatal(err)
	}
	if err := w.Finalize(); err != ErrInvariant {
		t.Fatalf("expected ErrInvariant on second Finalize, got %v", err)
	}
}

func TestAddAfterFinalizeIsInvariantViolation(t *testing.T) {
	dir := t.TempDir()
	w, err := Create(filepath.Join(dir, "000001.sst"))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Add([]byte("a"), []byte("1"), false); err != nil {
		t.Fatal(err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatal(err)
	}
	if err := w.Add([]byte("z"), []byte("1"), false); err != ErrInvariant {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
}

func TestCorruptionMidFileIsDetected(t *testing.T) {
	dir := t.TempDir()
	entries := []Entry{
		{Key: []byte("alpha"), Value: []byte("1")},
		{Key: []byte("bravo"), Value: []byte("2")},
	}
	path := buildTable(t, dir, entries)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)/2] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(path); err == nil {
		t.Fatal("expected ErrCorrupt opening a file with a flipped byte")
	}
}

func TestCorruptionInFooterCRCIsDetected(t *testing.T) {
	// The footer's CRC field is 8 bytes wide but only the low 4 hold the
	// real CRC-32, zero-extended into the high 4 (spec §9). Flip a byte
	// in each half to make sure both are actually checked.
	offsets := map[string]int{
		"low CRC byte (flipping the real checksum)":      8,
		"high zero-padding byte (last byte of the file)": 15,
	}

	for name, fromEnd := range offsets {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := buildTable(t, dir, []Entry{{Key: []byte("a"), Value: []byte("1")}})

			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			idx := len(data) - footerSize + fromEnd
			data[idx] ^= 0xFF
			if err := os.WriteFile(path, data, 0o644); err != nil {
				t.Fatal(err)
			}

			if _, err := Open(path); err == nil {
				t.Fatalf("expected ErrCorrupt opening a file with a flipped footer byte at offset %d", idx)
			}
		})
	}
}
