package store

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	sstableExt    = ".sst"
	sstableTmpExt = ".sst.tmp"
)

var sstableFileNamePattern = regexp.MustCompile(`^(\d{6})\.sst$`)

// sstFileName formats the canonical on-disk name for SSTable id.
func sstFileName(id uint64) string {
	return fmt.Sprintf("%06d%s", id, sstableExt)
}

// scanSSTables lists every well-formed NNNNNN.sst file in dir, sorted by
// ascending id (oldest first), and reports the next unused id. It also
// removes any leftover *.sst.tmp files from a writer that never reached
// Finalize before a crash.
func scanSSTables(dir string) (ids []uint64, nextID uint64, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, err
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, sstableTmpExt) {
			_ = os.Remove(filepath.Join(dir, name))
			continue
		}
		m := sstableFileNamePattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		id, convErr := strconv.ParseUint(m[1], 10, 64)
		if convErr != nil {
			continue
		}
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	nextID = 1
	if len(ids) > 0 {
		nextID = ids[len(ids)-1] + 1
	}
	return ids, nextID, nil
}
