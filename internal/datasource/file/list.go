package file

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Parts resolves an input path to the ordered list of part files it covers.
//
// A plain file resolves to itself. A directory resolves to its regular files
// sorted by name, so partition indexes are stable across runs. Hidden entries
// (names starting with '.' or '_') are skipped, which keeps checksum files
// and writer markers out of the row stream.
func Parts(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", path, err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}
		out = append(out, filepath.Join(path, name))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no part files under %s", path)
	}
	sort.Strings(out)
	return out, nil
}
