package retention

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileAged(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestSegmentSweepDeletesOnlyExpiredFiles(t *testing.T) {
	dir := t.TempDir()
	expired := fileAged(t, dir, "rec_20260526-120000.wav", 91*24*time.Hour)
	kept := fileAged(t, dir, "rec_20260528-120000.wav", 89*24*time.Hour)
	// Old but not a segment: the sweep must not touch it.
	foreign := fileAged(t, dir, "session-notes.wav", 365*24*time.Hour)

	deleted := SegmentPolicy(dir, 90).Sweep(time.Now(), zerolog.Nop())

	assert.Equal(t, 1, deleted)
	assert.False(t, exists(expired))
	assert.True(t, exists(kept))
	assert.True(t, exists(foreign))
}

func TestMergedSweepUsesItsOwnRetention(t *testing.T) {
	dir := t.TempDir()
	expired := fileAged(t, dir, "merged_20260825-100000_20260825-110000.wav", 3*time.Hour)
	kept := fileAged(t, dir, "merged_20260825-120000_20260825-130000.wav", time.Hour)

	deleted := MergedPolicy(dir, 2).Sweep(time.Now(), zerolog.Nop())

	assert.Equal(t, 1, deleted)
	assert.False(t, exists(expired))
	assert.True(t, exists(kept))
}

func TestSweepContinuesPastUndeletableFiles(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("directory permissions do not bind for root")
	}

	base := t.TempDir()
	locked := filepath.Join(base, "locked")
	require.NoError(t, os.Mkdir(locked, 0o755))
	fileAged(t, locked, "rec_20260526-120000.wav", 91*24*time.Hour)
	require.NoError(t, os.Chmod(locked, 0o555))
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	open := t.TempDir()
	expired := fileAged(t, open, "rec_20260526-120000.wav", 91*24*time.Hour)

	// The failing directory yields zero deletions but no panic/abort...
	assert.Equal(t, 0, SegmentPolicy(locked, 90).Sweep(time.Now(), zerolog.Nop()))
	// ...and an independent sweep still works.
	assert.Equal(t, 1, SegmentPolicy(open, 90).Sweep(time.Now(), zerolog.Nop()))
	assert.False(t, exists(expired))
}

func TestSweepMissingDirectoryIsNoop(t *testing.T) {
	p := SegmentPolicy(filepath.Join(t.TempDir(), "gone"), 90)
	assert.Equal(t, 0, p.Sweep(time.Now(), zerolog.Nop()))
}

func TestRunSweepsImmediatelyOnStart(t *testing.T) {
	dir := t.TempDir()
	expired := fileAged(t, dir, "rec_20260526-120000.wav", 91*24*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		// Interval far beyond the test's horizon: only the startup
		// pass can delete the file.
		Run(ctx, time.Hour, zerolog.Nop(), SegmentPolicy(dir, 90))
	}()

	require.Eventually(t, func() bool { return !exists(expired) },
		5*time.Second, 10*time.Millisecond,
		"files expired during downtime must be reclaimed at startup")

	cancel()
	<-done
}

func TestSweepIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	fileAged(t, dir, "rec_20260526-120000.wav", 91*24*time.Hour)

	p := SegmentPolicy(dir, 90)
	assert.Equal(t, 1, p.Sweep(time.Now(), zerolog.Nop()))
	assert.Equal(t, 0, p.Sweep(time.Now(), zerolog.Nop()))
}
