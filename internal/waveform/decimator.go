package waveform

import "math"

// DefaultPoints is the display resolution used when none is configured
const DefaultPoints = 10000

// Waveform is display-ready audio: peak-normalised samples with their time axis
type Waveform struct {
	Samples    []float32 `json:"samples"`
	Times      []float64 `json:"times"`
	Duration   float64   `json:"duration"`
	SampleRate int       `json:"sample_rate"`
}

// Downsample reduces samples to exactly targetSize values. The input is split into
// targetSize chunks of len(samples)/targetSize samples (the remainder is dropped) and
// each chunk is represented by its sample of greatest magnitude, sign preserved.
// On equal magnitudes the negative sample wins.
func Downsample(samples []float32, targetSize int) []float32 {
	if targetSize <= 0 {
		return []float32{}
	}

	out := make([]float32, targetSize)
	chunkLen := len(samples) / targetSize
	if chunkLen == 0 {
		return out
	}

	for i := range out {
		chunk := samples[i*chunkLen : (i+1)*chunkLen]
		hi, lo := chunk[0], chunk[0]
		for _, v := range chunk[1:] {
			if v > hi {
				hi = v
			}
			if v < lo {
				lo = v
			}
		}

		if abs32(hi) > abs32(lo) {
			out[i] = hi
		} else {
			out[i] = lo
		}
	}

	return out
}

// Normalize scales samples so the absolute peak is 1. Silent input is returned unchanged.
func Normalize(samples []float32) []float32 {
	out := make([]float32, len(samples))
	peak := float32(0)
	for _, v := range samples {
		if a := abs32(v); a > peak {
			peak = a
		}
	}

	if peak == 0 {
		copy(out, samples)
		return out
	}

	for i, v := range samples {
		out[i] = v / peak
	}
	return out
}

// FromPCM16 converts signed 16-bit PCM to float32 in [-1, 1]
func FromPCM16(pcm []int16) []float32 {
	out := make([]float32, len(pcm))
	for i, s := range pcm {
		out[i] = float32(s) / 32768
	}
	return out
}

// Build turns decoded mono PCM into a display waveform of at most points samples.
// Input no longer than points is kept at full resolution.
func Build(pcm []int16, sampleRate, points int) Waveform {
	if points <= 0 {
		points = DefaultPoints
	}

	samples := Normalize(FromPCM16(pcm))
	duration := 0.0
	if sampleRate > 0 {
		duration = float64(len(pcm)) / float64(sampleRate)
	}

	if len(samples) > points {
		samples = Downsample(samples, points)
	}

	return Waveform{
		Samples:    samples,
		Times:      linspace(0, duration, len(samples)),
		Duration:   duration,
		SampleRate: sampleRate,
	}
}

// linspace returns n evenly spaced values from start to stop inclusive
func linspace(start, stop float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}

	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func abs32(v float32) float32 {
	return float32(math.Abs(float64(v)))
}
