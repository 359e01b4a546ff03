package recorder

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petems/radiotape/internal/audio"
)

// runWriter feeds the given batches through an exchange, lets the
// writer drain them on shutdown, and returns its error.
func runWriter(t *testing.T, cfg Config, batches []audio.Batch) error {
	t.Helper()

	x := audio.NewExchange()
	w := NewWriter(cfg, x)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for _, b := range batches {
		x.Append(b)
	}
	cancel()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("writer did not stop")
		return nil
	}
}

// makeBatches produces contiguous mono batches of the given block size
// filled with val.
func makeBatches(totalFrames, block int, channels int, val int32) []audio.Batch {
	var batches []audio.Batch
	for start := 0; start < totalFrames; start += block {
		frames := block
		if start+frames > totalFrames {
			frames = totalFrames - start
		}
		samples := make([]int32, frames*channels)
		for i := range samples {
			samples[i] = val
		}
		batches = append(batches, audio.Batch{Samples: samples, Frames: frames, Start: uint64(start)})
	}
	return batches
}

func frameCount(t *testing.T, path string, channels int) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	return len(buf.Data) / channels
}

func TestWriterRotatesAtMinuteBoundaries(t *testing.T) {
	dir := t.TempDir()
	// 100 Hz keeps the arithmetic small: session starts 30 s before the
	// first minute mark, so the first boundary sits at frame 3000.
	start := time.Date(2026, 8, 25, 10, 0, 30, 0, time.Local)
	cfg := Config{
		Stream: audio.StreamConfig{SampleRate: 100, Channels: 1, BitDepth: 16},
		Dir:    dir,
		Logger: zerolog.Nop(),
		Clock:  func() time.Time { return start },
	}

	// 180 s of audio in 500-frame blocks.
	require.NoError(t, runWriter(t, cfg, makeBatches(18000, 500, 1, 1000)))

	// The first segment is named by the first boundary and absorbs the
	// partial leading minute; every later one covers exactly one minute.
	first := filepath.Join(dir, "rec_20260825-100100.wav")
	second := filepath.Join(dir, "rec_20260825-100200.wav")
	third := filepath.Join(dir, "rec_20260825-100300.wav")

	assert.Equal(t, 9000, frameCount(t, first, 1))
	assert.Equal(t, 6000, frameCount(t, second, 1), "steady-state segment must hold rate*60 frames")
	assert.Equal(t, 3000, frameCount(t, third, 1), "tail segment sealed on stop")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestWriterKeepsStraddlingBatchWhole(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2026, 8, 25, 10, 0, 30, 0, time.Local)
	cfg := Config{
		Stream: audio.StreamConfig{SampleRate: 100, Channels: 1, BitDepth: 16},
		Dir:    dir,
		Logger: zerolog.Nop(),
		Clock:  func() time.Time { return start },
	}

	// Block size 700 does not divide the 9000-frame boundary: the batch
	// starting at 8400 straddles it and stays in the first segment, the
	// one starting at 9100 triggers rotation.
	require.NoError(t, runWriter(t, cfg, makeBatches(11200, 700, 1, 1)))

	first := frameCount(t, filepath.Join(dir, "rec_20260825-100100.wav"), 1)
	second := frameCount(t, filepath.Join(dir, "rec_20260825-100200.wav"), 1)
	assert.Equal(t, 9100, first, "straddling batch belongs to the segment open when it arrived")
	assert.Equal(t, 2100, second)
	assert.Equal(t, 11200, first+second, "no frame lost or duplicated across the boundary")
}

func TestWriterStereoFrameAccounting(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2026, 8, 25, 10, 0, 0, 0, time.Local)
	cfg := Config{
		Stream: audio.StreamConfig{SampleRate: 100, Channels: 2, BitDepth: 16},
		Dir:    dir,
		Logger: zerolog.Nop(),
		Clock:  func() time.Time { return start },
	}

	require.NoError(t, runWriter(t, cfg, makeBatches(3000, 500, 2, 42)))

	// Session start on an exact minute: first boundary one minute later.
	path := filepath.Join(dir, "rec_20260825-100100.wav")
	assert.Equal(t, 3000, frameCount(t, path, 2))
}

func TestWriter24BitSerialization(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2026, 8, 25, 10, 0, 30, 0, time.Local)
	cfg := Config{
		Stream: audio.StreamConfig{SampleRate: 100, Channels: 1, BitDepth: 24},
		Dir:    dir,
		Logger: zerolog.Nop(),
		Clock:  func() time.Time { return start },
	}

	batch := audio.Batch{Samples: []int32{0x12345600, 0x12345600}, Frames: 2, Start: 0}
	require.NoError(t, runWriter(t, cfg, []audio.Batch{batch}))

	raw, err := os.ReadFile(filepath.Join(dir, "rec_20260825-100100.wav"))
	require.NoError(t, err)

	idx := bytes.Index(raw, []byte("data"))
	require.GreaterOrEqual(t, idx, 0, "no data chunk in segment")
	payload := raw[idx+8:]
	require.Len(t, payload, 6, "each 24-bit sample must serialize to exactly 3 bytes")

	// 0x12345600 >> 8 = 0x123456, little-endian.
	assert.Equal(t, []byte{0x56, 0x34, 0x12}, payload[:3])
}

func TestWriterReportsLevels(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2026, 8, 25, 10, 0, 30, 0, time.Local)

	var got []float64
	cfg := Config{
		Stream:   audio.StreamConfig{SampleRate: 100, Channels: 1, BitDepth: 16},
		Dir:      dir,
		Logger:   zerolog.Nop(),
		Clock:    func() time.Time { return start },
		OnLevels: func(left, right float64) { got = append(got, left, right) },
	}

	require.NoError(t, runWriter(t, cfg, makeBatches(500, 500, 1, 16384)))

	require.Len(t, got, 2)
	// Constant half-scale signal: RMS 0.5, about -6.02 dBFS.
	assert.InDelta(t, -6.02, got[0], 0.01)
	assert.Equal(t, got[0], got[1], "mono reports the same level on both channels")
}
