package archive

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// TimestampLayout is the compact wall-clock stamp embedded in every
// file name produced by this system.
const TimestampLayout = "20060102-150405"

const (
	segmentPrefix = "rec_"
	mergedPrefix  = "merged_"
	wavExt        = ".wav"
)

// SegmentName returns the file name for a segment rotated at boundary t,
// e.g. rec_20260825-140300.wav.
func SegmentName(t time.Time) string {
	return segmentPrefix + t.Format(TimestampLayout) + wavExt
}

// MergedName returns the output file name for a merge covering [start, end].
func MergedName(start, end time.Time) string {
	return fmt.Sprintf("%s%s_%s%s", mergedPrefix, start.Format(TimestampLayout), end.Format(TimestampLayout), wavExt)
}

// ParseSegmentTime extracts the boundary timestamp from a segment file
// name. The path may be absolute; only the base name is inspected.
func ParseSegmentTime(path string) (time.Time, error) {
	name := filepath.Base(path)
	if !strings.HasPrefix(name, segmentPrefix) || !strings.HasSuffix(name, wavExt) {
		return time.Time{}, fmt.Errorf("not a segment file name: %s", name)
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, segmentPrefix), wavExt)
	t, err := time.ParseInLocation(TimestampLayout, stamp, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse segment timestamp %q: %w", stamp, err)
	}
	return t, nil
}

// ParseTimestamp parses a request timestamp in the same compact layout
// the file names use.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.ParseInLocation(TimestampLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
