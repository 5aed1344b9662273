// Package codec implements the fixed-width little-endian integer encoding
// and CRC-32 checksum shared by the WAL and SSTable on-disk formats. It
// holds no state and never allocates beyond what binary.Write/Read need.
package codec

import (
	"encoding/binary"
	"hash"
	"hash/crc32"
	"io"
)

// ChecksumTable is the CRC-32 table used throughout the on-disk formats
// (IEEE 802.3 polynomial, reflected — the "commonly implemented" CRC-32).
var ChecksumTable = crc32.IEEETable

// Checksum returns the CRC-32 (IEEE) of b.
func Checksum(b []byte) uint32 {
	return crc32.Checksum(b, ChecksumTable)
}

// NewChecksum returns a streaming CRC-32 (IEEE) hasher suitable for use
// behind an io.MultiWriter while a record is being written out.
func NewChecksum() hash.Hash32 {
	return crc32.New(ChecksumTable)
}

// PutUint32 writes a little-endian uint32.
func PutUint32(w io.Writer, v uint32) error {
	return binary.Write(w, binary.LittleEndian, v)
}

// PutUint64 writes a little-endian uint64.
func PutUint64(w io.Writer, v uint64) error {
	return binary.Write(w, binary.LittleEndian, v)
}

// ReadUint32 reads a little-endian uint32.
func ReadUint32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

// ReadUint64 reads a little-endian uint64.
func ReadUint64(r io.Reader) (uint64, error) {
	var v uint64
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

// Uint32 decodes a little-endian uint32 from the front of b.
func Uint32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

// Uint64 decodes a little-endian uint64 from the front of b.
func Uint64(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}

// PutUint32Bytes encodes v little-endian into b[:4].
func PutUint32Bytes(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
}

// PutUint64Bytes encodes v little-endian into b[:8].
func PutUint64Bytes(b []byte, v uint64) {
	binary.LittleEndian.PutUint64(b, v)
}
