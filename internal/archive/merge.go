package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
)

// ErrNoSegments reports that a merge request's window contained no
// segment files. It is a user-visible empty-result condition, distinct
// from an I/O failure.
var ErrNoSegments = errors.New("no segments in requested range")

// ErrInvalidRange reports a request whose end is not strictly after its
// start. It is rejected before any directory access happens.
var ErrInvalidRange = errors.New("end time must be after start time")

// Request describes one merge: the time window, where segments live and
// where the merged file goes.
type Request struct {
	Start      time.Time
	End        time.Time
	SegmentDir string
	OutputDir  string
}

// pcmFormat is the canonical PCM shape a merge enforces, taken from the
// first input file.
type pcmFormat struct {
	channels   int
	bitDepth   int
	sampleRate int
}

func (f pcmFormat) String() string {
	return fmt.Sprintf("%dch/%dbit/%dHz", f.channels, f.bitDepth, f.sampleRate)
}

// MergeRange resolves the request window and concatenates the matching
// segments into a single WAV in the output directory, returning its
// path. Zero matching segments yields ErrNoSegments.
func MergeRange(req Request, log zerolog.Logger) (string, error) {
	if !req.End.After(req.Start) {
		return "", ErrInvalidRange
	}

	files, err := Resolve(req.SegmentDir, req.Start, req.End, log)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", ErrNoSegments
	}

	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	dest := filepath.Join(req.OutputDir, MergedName(req.Start, req.End))
	if err := Merge(files, dest, log); err != nil {
		return "", err
	}
	return dest, nil
}

// Merge concatenates the frame payloads of the given WAV files, in
// order, into dest. The first file establishes the canonical format;
// inputs that do not match it, or that cannot be decoded, are skipped
// with a warning and the merge continues. A failure to produce dest
// itself aborts the merge and removes any partial output, so a failed
// merge never leaves an unreported file behind.
func Merge(files []string, dest string, log zerolog.Logger) error {
	if len(files) == 0 {
		return ErrNoSegments
	}

	canon, err := probeFormat(files[0])
	if err != nil {
		return fmt.Errorf("probe %s: %w", filepath.Base(files[0]), err)
	}
	log.Info().Int("files", len(files)).Stringer("format", canon).Msg("Merge started")

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create merged file: %w", err)
	}

	enc := wav.NewEncoder(out, canon.sampleRate, canon.bitDepth, canon.channels, 1)

	abort := func(cause error) error {
		out.Close()
		if rmErr := os.Remove(dest); rmErr != nil {
			log.Warn().Str("file", dest).Err(rmErr).Msg("Cannot remove partial merge output")
		}
		return cause
	}

	for i, path := range files {
		buf, skip, err := readPayload(path, canon)
		if skip != nil {
			log.Warn().Str("file", filepath.Base(path)).Err(skip).Msg("Skipping segment")
			continue
		}
		if err != nil {
			return abort(err)
		}
		if err := enc.Write(buf); err != nil {
			return abort(fmt.Errorf("append %s: %w", filepath.Base(path), err))
		}
		log.Info().
			Str("file", filepath.Base(path)).
			Int("index", i+1).
			Int("total", len(files)).
			Msg("Segment merged")
	}

	if err := enc.Close(); err != nil {
		return abort(fmt.Errorf("finalize merged file: %w", err))
	}
	if err := out.Close(); err != nil {
		return abort(fmt.Errorf("close merged file: %w", err))
	}

	log.Info().Str("file", dest).Msg("Merge complete")
	return nil
}

// probeFormat reads the WAV header of path and returns its PCM shape.
func probeFormat(path string) (pcmFormat, error) {
	f, err := os.Open(path)
	if err != nil {
		return pcmFormat{}, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return pcmFormat{}, errors.New("not a valid WAV file")
	}
	return pcmFormat{
		channels:   int(dec.NumChans),
		bitDepth:   int(dec.BitDepth),
		sampleRate: int(dec.SampleRate),
	}, nil
}

// readPayload decodes the full frame payload of one input file. The
// whole file is read before anything is appended so a decode failure
// midway never leaves a partially copied segment in the output. A
// non-nil skip return means the file should be left out of the merge
// but the merge itself continues.
func readPayload(path string, canon pcmFormat) (buf *audio.IntBuffer, skip, fatal error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err), nil
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, errors.New("not a valid WAV file"), nil
	}

	got := pcmFormat{
		channels:   int(dec.NumChans),
		bitDepth:   int(dec.BitDepth),
		sampleRate: int(dec.SampleRate),
	}
	if got != canon {
		return nil, fmt.Errorf("format %s differs from %s", got, canon), nil
	}

	buf, err = dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err), nil
	}
	buf.SourceBitDepth = canon.bitDepth
	return buf, nil, nil
}
