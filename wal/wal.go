// Package wal implements the durable, append-only Write-Ahead Log that
// underwrites every mutation accepted by the store before it is applied
// to the memtable. Every successful Append is fsynced before it returns;
// a crash can only ever leave a partial trailing record, which Iterate
// reports as a clean end of log rather than an error.
package wal

import (
	"errors"
	"fmt"
)

const (
	// MaxKeyBytes is the largest key accepted by the log (spec §3).
	MaxKeyBytes = 1024
	// MaxValueBytes is the largest value accepted by the log (spec §3).
	MaxValueBytes = 1 << 20

	// tombstoneSentinel marks a deletion in the value_size field.
	tombstoneSentinel = 0xFFFFFFFF

	// headerSize is timestamp(8) + key_size(4) + value_size(4).
	headerSize = 8 + 4 + 4
)

// ErrCorrupt is returned when a record fails its CRC check, or declares
// a key/value size that overruns the documented caps, anywhere other
// than an incomplete trailing record (see Reader.Iterate).
var ErrCorrupt = errors.New("wal: corrupt record")

// ErrKeyTooLarge is returned by Append when the key exceeds MaxKeyBytes.
var ErrKeyTooLarge = fmt.Errorf("wal: key exceeds %d bytes", MaxKeyBytes)

// ErrValueTooLarge is returned by Append when the value exceeds MaxValueBytes.
var ErrValueTooLarge = fmt.Errorf("wal: value exceeds %d bytes", MaxValueBytes)

// ErrClosed is returned by operations attempted on a closed Writer or Reader.
var ErrClosed = errors.New("wal: closed")
