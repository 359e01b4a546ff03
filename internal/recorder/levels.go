package recorder

import (
	"math"

	"github.com/petems/radiotape/internal/audio"
)

// silenceFloor is reported when a batch carries no signal at all.
const silenceFloor = -100.0

// BatchLevels computes the per-channel RMS level of a batch in dBFS.
// For mono input both return values are equal. The calculation runs on
// the consumer side, never in the capture callback.
func BatchLevels(b *audio.Batch, cfg audio.StreamConfig) (left, right float64) {
	if b.Frames == 0 {
		return silenceFloor, silenceFloor
	}

	// 16-bit samples occupy the int16 range; 24- and 32-bit material is
	// carried at full int32 scale.
	fullScale := float64(1 << 31)
	if cfg.BitDepth == 16 {
		fullScale = 1 << 15
	}

	if cfg.Channels == 1 {
		db := rmsDB(b.Samples, 1, 0, fullScale)
		return db, db
	}
	return rmsDB(b.Samples, 2, 0, fullScale), rmsDB(b.Samples, 2, 1, fullScale)
}

func rmsDB(samples []int32, stride, offset int, fullScale float64) float64 {
	var sum float64
	n := 0
	for i := offset; i < len(samples); i += stride {
		v := float64(samples[i]) / fullScale
		sum += v * v
		n++
	}
	if n == 0 {
		return silenceFloor
	}
	rms := math.Sqrt(sum / float64(n))
	if rms <= 0 {
		return silenceFloor
	}
	return 20 * math.Log10(rms)
}
