package motion

import (
	"github.com/kikiluvv/hypecut/internal/signal"
)

// Fuse blends a normalized audio novelty curve with a motion curve into
// a single score curve on the audio axis. A motion curve on a different
// axis is resampled first. The result is clipped to [0,1].
func Fuse(audio, motion signal.Curve, audioWeight, motionWeight float64) signal.Curve {
	if audio.Len() == 0 {
		return audio
	}

	motionValues := motion.Values
	if motion.Len() != audio.Len() || motion.Start != audio.Start || motion.Step != audio.Step {
		times := make([]float64, audio.Len())
		for i := range times {
			times[i] = audio.Time(i)
		}
		motionValues = motion.Interp(times)
	}

	fused := make([]float64, audio.Len())
	for i := range fused {
		fused[i] = audioWeight*audio.Values[i] + motionWeight*motionValues[i]
	}
	signal.Clip01(fused)
	return signal.New(audio.Start, audio.Step, fused)
}
