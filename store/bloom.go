package store

import "github.com/bits-and-blooms/bloom/v3"

// buildBloomFilter scans every key in an SSTable once and returns an
// in-memory Bloom filter sized for it. The filter accelerates Get by
// letting the store skip a table's on-disk lookup when it definitely
// does not contain a key; it is never written to disk and is rebuilt
// from scratch whenever a table is opened (on flush or on Open replay).
// Keeping it out of the SSTable file itself is what keeps that format
// bit-exact regardless of how a filter is estimated or tuned.
func buildBloomFilter(keys [][]byte, falsePositiveRate float64) *bloom.BloomFilter {
	n := uint(len(keys))
	if n == 0 {
		n = 1
	}
	f := bloom.NewWithEstimates(n, falsePositiveRate)
	for _, k := range keys {
		f.Add(k)
	}
	return f
}
