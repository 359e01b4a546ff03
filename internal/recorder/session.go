package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/petems/radiotape/internal/audio"
)

// ErrStopTimeout reports that a session did not finish draining within
// the caller's deadline. The stop is still in progress; resources are
// released asynchronously once the writer finishes.
var ErrStopTimeout = errors.New("recording stop timed out")

// Session ties a capture source, a frame exchange and a segment writer
// together for one continuous recording.
type Session struct {
	capture audio.Capture
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// Start validates the stream config, opens the capture stream and
// launches the writer goroutine. The returned session records until
// Stop is called or the writer hits a fatal error.
func Start(cfg Config, capture audio.Capture) (*Session, error) {
	if err := cfg.Stream.Validate(); err != nil {
		return nil, err
	}

	exchange := audio.NewExchange()
	writer := NewWriter(cfg, exchange)

	if err := capture.Start(cfg.Stream, exchange); err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		capture: capture,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		if err := writer.Run(ctx); err != nil {
			cfg.Logger.Error().Err(err).Msg("Segment writer failed")
			s.err = err
			// With the writer gone nothing drains the exchange; stop
			// the producer too or the callback grows it forever.
			if stopErr := capture.Stop(); stopErr != nil {
				cfg.Logger.Warn().Err(stopErr).Msg("Capture stop failed after writer error")
			}
		}
	}()

	return s, nil
}

// Done is closed once the writer has finished, whether by Stop or by a
// fatal error. Callers supervising a recording select on it alongside
// their own shutdown signals; Err reports why it closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Stop halts capture, lets the writer drain both exchange buffers and
// seal the final segment, and waits up to timeout for it to finish.
// A timeout return means best-effort stop: the writer keeps finishing
// in the background.
func (s *Session) Stop(timeout time.Duration) error {
	// Stop the producer first so the final drain sees every batch.
	stopErr := s.capture.Stop()
	s.cancel()

	select {
	case <-s.done:
		if s.err != nil {
			return s.err
		}
		return stopErr
	case <-time.After(timeout):
		return ErrStopTimeout
	}
}

// Err reports the writer's fatal error, if any. Valid after the session
// finished stopping.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}
