// Package retention expires old recording artifacts. Segment files and
// merged files age out under independent policies: segments are the
// archive and live for months, merged files are transient delivery
// artifacts and live for hours.
package retention

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Policy describes one sweep: which files in which directory, and how
// old they may get.
type Policy struct {
	Dir    string
	Prefix string
	MaxAge time.Duration
}

// SegmentPolicy expires rec_*.wav files in dir after the given number
// of retention days.
func SegmentPolicy(dir string, days float64) Policy {
	return Policy{
		Dir:    dir,
		Prefix: "rec_",
		MaxAge: time.Duration(days * 24 * float64(time.Hour)),
	}
}

// MergedPolicy expires merged_*.wav files in dir after the given number
// of retention hours.
func MergedPolicy(dir string, hours float64) Policy {
	return Policy{
		Dir:    dir,
		Prefix: "merged_",
		MaxAge: time.Duration(hours * float64(time.Hour)),
	}
}

// Sweep deletes every matching file whose age (now minus modification
// time) exceeds the policy's maximum, returning the number deleted.
// Each deletion is independent: a failure is logged and the sweep moves
// on. A missing directory is not an error; there is nothing to expire.
func (p Policy) Sweep(now time.Time, log zerolog.Logger) int {
	entries, err := os.ReadDir(p.Dir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Str("dir", p.Dir).Err(err).Msg("Cannot read directory for sweep")
		}
		return 0
	}

	deleted := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, p.Prefix) || !strings.HasSuffix(name, ".wav") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			log.Warn().Str("file", name).Err(err).Msg("Cannot stat file during sweep")
			continue
		}

		age := now.Sub(info.ModTime())
		if age <= p.MaxAge {
			continue
		}

		path := filepath.Join(p.Dir, name)
		if err := os.Remove(path); err != nil {
			log.Warn().Str("file", name).Err(err).Msg("Cannot delete expired file")
			continue
		}
		deleted++
		log.Info().Str("file", name).Dur("age", age).Msg("Expired file deleted")
	}

	if deleted > 0 {
		log.Info().Str("dir", p.Dir).Int("deleted", deleted).Msg("Sweep complete")
	}
	return deleted
}

// Run executes every policy once immediately, then on a fixed interval
// until ctx is cancelled. The initial pass reclaims files that expired
// while the process was down. Sweeps are idempotent and touch only
// sealed files, so running concurrently with capture and merges needs
// no coordination.
func Run(ctx context.Context, interval time.Duration, log zerolog.Logger, policies ...Policy) {
	sweepAll := func() {
		now := time.Now()
		for _, p := range policies {
			p.Sweep(now, log)
		}
	}
	sweepAll()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepAll()
		}
	}
}
