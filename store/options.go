package store

import "github.com/flarekv/lsm/memtable"

// Options configures Open. Zero-valued fields take the documented default.
type Options struct {
	// MemtableFlushThresholdBytes triggers a flush once the active
	// memtable's accounted size reaches it. Defaults to
	// memtable.DefaultFlushThresholdBytes.
	MemtableFlushThresholdBytes int

	// BloomFalsePositiveRate is the target false-positive rate for the
	// in-memory accelerator built over each SSTable at open time.
	// Defaults to 0.01. Set negative to disable Bloom filtering.
	BloomFalsePositiveRate float64
}

func (o Options) withDefaults() Options {
	if o.MemtableFlushThresholdBytes <= 0 {
		o.MemtableFlushThresholdBytes = memtable.DefaultFlushThresholdBytes
	}
	if o.BloomFalsePositiveRate == 0 {
		o.BloomFalsePositiveRate = 0.01
	}
	return o
}
