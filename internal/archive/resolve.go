package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// resolverPad widens the requested window on both sides. Segment names
// carry the rotation boundary, not the exact first-sample time, so a
// file holding audio for the requested window can be stamped up to one
// minute away from it.
const resolverPad = time.Minute

// Resolve returns the paths of all segment files in dir whose resolved
// timestamp falls within [start-1m, end+1m], ordered ascending.
//
// A file's timestamp comes from its rec_YYYYMMDD-HHMMSS name; if the
// name does not parse (renamed or externally recovered files), the
// filesystem modification time is used instead. Files where both fail
// are skipped with a warning. An empty result is not an error here;
// MergeRange turns it into ErrNoSegments.
func Resolve(dir string, start, end time.Time, log zerolog.Logger) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read segment directory: %w", err)
	}

	lo := start.Add(-resolverPad)
	hi := end.Add(resolverPad)

	type candidate struct {
		path  string
		stamp time.Time
	}
	var found []candidate

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), wavExt) {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		stamp, err := ParseSegmentTime(path)
		if err != nil {
			info, statErr := entry.Info()
			if statErr != nil {
				log.Warn().Str("file", entry.Name()).Err(statErr).
					Msg("Cannot resolve segment timestamp, skipping")
				continue
			}
			stamp = info.ModTime()
		}

		if !stamp.Before(lo) && !stamp.After(hi) {
			found = append(found, candidate{path: path, stamp: stamp})
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].stamp.Before(found[j].stamp) })

	paths := make([]string, 0, len(found))
	for _, c := range found {
		paths = append(paths, c.path)
	}
	return paths, nil
}
