package recorder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"

	"github.com/petems/radiotape/internal/archive"
	"github.com/petems/radiotape/internal/audio"
)

// fallbackTick bounds how long the writer sleeps between drains when
// the producer is silent, so a stop request is always observed.
const fallbackTick = 100 * time.Millisecond

// Config carries the segment writer's collaborators and parameters.
type Config struct {
	Stream audio.StreamConfig
	// Dir is the segment directory; created if missing.
	Dir    string
	Logger zerolog.Logger
	// Clock supplies the session start time; defaults to time.Now.
	Clock func() time.Time
	// OnLevels, when set, receives per-channel RMS levels in dBFS for
	// every drained batch. Mono input reports the same value twice.
	OnLevels func(left, right float64)
}

// Writer is the consumer side of the capture pipeline. It drains the
// frame exchange, attributes each batch to a wall-clock-minute-aligned
// segment file by cumulative frame index, and rotates files at minute
// boundaries.
//
// Rotation granularity is per batch: a batch whose first frame has
// crossed the boundary threshold is written in full to the newly opened
// segment, even if its tail nominally belongs there alone. The slack is
// bounded by one block and is absorbed by the resolver's one-minute
// window pad.
type Writer struct {
	cfg      Config
	exchange *audio.Exchange

	// Boundary schedule: the wall-clock stamp the next segment will be
	// named after, and the cumulative frame index at which rotation
	// happens. Both advance by one minute per rotation.
	boundary  time.Time
	threshold uint64

	file   *os.File
	enc    *wav.Encoder
	frames uint64 // frames written to the open segment

	scratch []int
}

// NewWriter prepares a writer that consumes from x. Run starts it.
func NewWriter(cfg Config, x *audio.Exchange) *Writer {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Writer{cfg: cfg, exchange: x}
}

// Run consumes batches until ctx is cancelled, then drains whatever is
// still buffered and seals the last segment. It returns the first
// session-fatal error (segment create/write failures); the caller tears
// the session down on a non-nil return.
func (w *Writer) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create recording directory: %w", err)
	}

	start := w.cfg.Clock()
	w.boundary = start.Truncate(time.Minute).Add(time.Minute)
	w.threshold = framesUntil(start, w.boundary, w.cfg.Stream.SampleRate)

	w.cfg.Logger.Info().
		Time("next_boundary", w.boundary).
		Uint64("boundary_frame", w.threshold).
		Msg("Recording started")

	ticker := time.NewTicker(fallbackTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final drain covers both halves of the exchange; the
			// producer has been stopped by the session before
			// cancellation, so nothing arrives after this.
			var err error
			for range 2 {
				if e := w.flush(w.exchange.Drain()); e != nil && err == nil {
					err = e
				}
			}
			if e := w.seal(); e != nil && err == nil {
				err = e
			}
			return err
		case <-w.exchange.Wakeup():
			if err := w.flush(w.exchange.Drain()); err != nil {
				w.seal()
				return err
			}
		case <-ticker.C:
			if err := w.flush(w.exchange.Drain()); err != nil {
				w.seal()
				return err
			}
		}
	}
}

// flush writes a drained run of batches, rotating segments as boundary
// thresholds are crossed.
func (w *Writer) flush(batches []audio.Batch) error {
	for i := range batches {
		b := &batches[i]
		if b.Overflow {
			w.cfg.Logger.Warn().Uint64("frame", b.Start).Msg("Input overflow reported by driver")
		}
		if w.enc == nil || b.Start >= w.threshold {
			if err := w.rotate(); err != nil {
				return err
			}
		}
		if err := w.writeBatch(b); err != nil {
			return err
		}
		if w.cfg.OnLevels != nil {
			left, right := BatchLevels(b, w.cfg.Stream)
			w.cfg.OnLevels(left, right)
		}
	}
	return nil
}

// rotate seals the open segment, opens the next one named after the
// current boundary stamp, and advances the schedule by one minute.
func (w *Writer) rotate() error {
	if err := w.seal(); err != nil {
		return err
	}

	name := archive.SegmentName(w.boundary)
	path := filepath.Join(w.cfg.Dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create segment %s: %w", name, err)
	}

	w.file = f
	w.enc = wav.NewEncoder(f, w.cfg.Stream.SampleRate, w.cfg.Stream.BitDepth, w.cfg.Stream.Channels, 1)
	w.frames = 0

	w.boundary = w.boundary.Add(time.Minute)
	w.threshold += uint64(w.cfg.Stream.SampleRate) * 60

	w.cfg.Logger.Info().
		Str("file", name).
		Time("next_boundary", w.boundary).
		Uint64("boundary_frame", w.threshold).
		Msg("Segment opened")
	return nil
}

// seal finalizes and closes the open segment, if any. A sealed file is
// never reopened for writing.
func (w *Writer) seal() error {
	if w.enc == nil {
		return nil
	}
	name := filepath.Base(w.file.Name())
	encErr := w.enc.Close()
	fileErr := w.file.Close()
	w.enc = nil
	w.file = nil

	if encErr != nil {
		return fmt.Errorf("finalize segment %s: %w", name, encErr)
	}
	if fileErr != nil {
		return fmt.Errorf("close segment %s: %w", name, fileErr)
	}
	w.cfg.Logger.Info().Str("file", name).Uint64("frames", w.frames).Msg("Segment sealed")
	return nil
}

// writeBatch serializes one batch into the open segment. 16- and 32-bit
// samples are written verbatim; 24-bit samples arrive as left-justified
// int32 and are arithmetic-shifted right by 8 bits so the encoder emits
// them as 3-byte little-endian values.
func (w *Writer) writeBatch(b *audio.Batch) error {
	if cap(w.scratch) < len(b.Samples) {
		w.scratch = make([]int, len(b.Samples))
	}
	data := w.scratch[:len(b.Samples)]

	if w.cfg.Stream.BitDepth == 24 {
		for i, s := range b.Samples {
			data[i] = int(s >> 8)
		}
	} else {
		for i, s := range b.Samples {
			data[i] = int(s)
		}
	}

	buf := &goaudio.IntBuffer{
		Data: data,
		Format: &goaudio.Format{
			NumChannels: w.cfg.Stream.Channels,
			SampleRate:  w.cfg.Stream.SampleRate,
		},
		SourceBitDepth: w.cfg.Stream.BitDepth,
	}
	if err := w.enc.Write(buf); err != nil {
		return fmt.Errorf("write segment: %w", err)
	}
	w.frames += uint64(b.Frames)
	return nil
}

// framesUntil converts the wall-clock distance from start to boundary
// into a frame count at the given rate.
func framesUntil(start, boundary time.Time, rate int) uint64 {
	d := boundary.Sub(start)
	if d <= 0 {
		return 0
	}
	return uint64(int64(d) * int64(rate) / int64(time.Second))
}
