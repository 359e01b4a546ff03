package audio

import "fmt"

// StreamConfig describes one capture session's hardware format. It is
// immutable for the lifetime of the session; every segment written
// during the session carries exactly these fields.
type StreamConfig struct {
	Device     string
	SampleRate int
	Channels   int
	BitDepth   int
}

// Validate checks the config against the formats the recorder supports.
func (c StreamConfig) Validate() error {
	switch c.SampleRate {
	case 44100, 48000, 96000:
	default:
		return fmt.Errorf("unsupported sample rate: %d", c.SampleRate)
	}
	switch c.Channels {
	case 1, 2:
	default:
		return fmt.Errorf("unsupported channel count: %d", c.Channels)
	}
	switch c.BitDepth {
	case 16, 24, 32:
	default:
		return fmt.Errorf("unsupported bit depth: %d", c.BitDepth)
	}
	return nil
}

// BytesPerSample returns the on-disk width of one sample.
func (c StreamConfig) BytesPerSample() int {
	return c.BitDepth / 8
}

// Batch is one block of interleaved PCM samples as delivered by a
// single capture callback. Samples are carried as int32 regardless of
// bit depth; 24-bit material keeps its full 32-bit driver value until
// the writer serializes it. Start is the cumulative frame index of the
// batch's first frame within the session.
type Batch struct {
	Samples []int32
	Frames  int
	Start   uint64
	// Overflow marks a transient driver overrun reported with this
	// block. The callback must not log; the consumer warns instead.
	Overflow bool
}

// Sink receives batches from the capture callback. Append must be
// non-blocking and cheap; it runs on the real-time audio thread.
type Sink interface {
	Append(Batch)
}

// Capture owns a hardware input stream.
type Capture interface {
	// Start opens the device described by cfg and begins delivering
	// fixed-size batches to sink. Device or format problems are
	// reported here, once.
	Start(cfg StreamConfig, sink Sink) error
	// Stop halts the stream; batches already handed to the sink are
	// unaffected.
	Stop() error
	// ListDevices enumerates usable input devices.
	ListDevices() ([]Device, error)
	Close() error
}

// Device represents an audio input device.
type Device struct {
	ID       string
	Name     string
	Channels int
	Default  bool
}
