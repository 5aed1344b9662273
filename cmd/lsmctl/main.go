// Command lsmctl is a small operator CLI over a store directory, useful
// for poking at a database by hand or scripting simple checks.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/flarekv/lsm/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]

	fs := flag.NewFlagSet("lsmctl", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	dir := fs.String("dir", "data", "store directory (WAL + sstables live here)")
	flushThreshold := fs.Int("flush-bytes", 0, "memtable flush threshold in bytes (0 uses the default)")
	bloomFPRate := fs.Float64("bloom-fp-rate", 0, "Bloom filter target false-positive rate (0 uses the default, negative disables it)")

	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(2)
	}
	args := fs.Args()

	opts := store.Options{
		MemtableFlushThresholdBytes: *flushThreshold,
		BloomFalsePositiveRate:      *bloomFPRate,
	}

	s, err := store.Open(*dir, opts)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = s.Close() }()

	switch cmd {
	case "put":
		if len(args) != 2 {
			usage()
			os.Exit(2)
		}
		if err := s.Put([]byte(args[0]), []byte(args[1])); err != nil {
			fatal(err)
		}
		fmt.Println("ok")
	case "get":
		if len(args) != 1 {
			usage()
			os.Exit(2)
		}
		v, ok, err := s.Get([]byte(args[0]))
		if err != nil {
			fatal(err)
		}
		if !ok {
			fmt.Println("(not found)")
			os.Exit(1)
		}
		fmt.Println(string(v))
	case "del":
		if len(args) != 1 {
			usage()
			os.Exit(2)
		}
		if err := s.Delete([]byte(args[0])); err != nil {
			fatal(err)
		}
		fmt.Println("ok")
	case "stats":
		st := s.Stats()
		fmt.Printf("memtable: %d entries, %d bytes\n", st.MemtableEntries, st.MemtableSizeBytes)
		fmt.Printf("sstables: %d\n", st.SSTableCount)
		fmt.Printf("wal: %d bytes\n", st.WALSizeBytes)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  lsmctl put [flags] <key> <value>")
	fmt.Fprintln(os.Stderr, "  lsmctl get [flags] <key>")
	fmt.Fprintln(os.Stderr, "  lsmctl del [flags] <key>")
	fmt.Fprintln(os.Stderr, "  lsmctl stats [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Flags:")
	fmt.Fprintln(os.Stderr, "  -dir            store directory (default: data)")
	fmt.Fprintln(os.Stderr, "  -flush-bytes    memtable flush threshold in bytes")
	fmt.Fprintln(os.Stderr, "  -bloom-fp-rate  Bloom filter target false-positive rate")
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
