package transcriber

import (
	"fmt"
	"math"
	"time"
)

// DefaultChunkDuration is the fixed length of audio sent to the engine as one unit
const DefaultChunkDuration = 30 * time.Second

// Window restricts transcription to part of the audio, in seconds
type Window struct {
	Start float64
	End   float64
}

// Chunk is one fixed-size slice of the request audio. The final chunk of a window
// may cover fewer samples than Size and is zero-padded when converted.
type Chunk struct {
	Index        int
	StartSeconds float64
	Offset       int
	Length       int
	Size         int
}

// Float32 converts the chunk's int16 PCM to float32 in [-1, 1], zero-padded to Size
func (c Chunk) Float32(pcm []int16) []float32 {
	out := make([]float32, c.Size)
	for i, s := range pcm[c.Offset : c.Offset+c.Length] {
		out[i] = float32(s) / 32768
	}
	return out
}

// Partition splits pcm (or the window of it) into ceil(length / chunkDuration) chunks
func Partition(pcm []int16, sampleRate int, window *Window, chunkDuration time.Duration) ([]Chunk, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	chunkSize := int(math.Round(chunkDuration.Seconds() * float64(sampleRate)))
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk duration %s is shorter than one sample", chunkDuration)
	}

	first, last := 0, len(pcm)
	if window != nil {
		if window.End < window.Start {
			return nil, fmt.Errorf("window end %.3f is before start %.3f", window.End, window.Start)
		}
		first = clampSample(window.Start, sampleRate, len(pcm))
		last = clampSample(window.End, sampleRate, len(pcm))
	}

	windowStart := float64(first) / float64(sampleRate)
	count := (last - first + chunkSize - 1) / chunkSize

	chunks := make([]Chunk, 0, count)
	for i := 0; i < count; i++ {
		offset := first + i*chunkSize
		length := chunkSize
		if offset+length > last {
			length = last - offset
		}
		chunks = append(chunks, Chunk{
			Index:        i,
			StartSeconds: windowStart + float64(i)*chunkDuration.Seconds(),
			Offset:       offset,
			Length:       length,
			Size:         chunkSize,
		})
	}

	return chunks, nil
}

func clampSample(seconds float64, sampleRate, n int) int {
	s := int(math.Round(seconds * float64(sampleRate)))
	if s < 0 {
		return 0
	}
	if s > n {
		return n
	}
	return s
}
