package transcriber

import (
	"fmt"
	"io"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

// sampleStreamer plays mono float32 samples on both channels
type sampleStreamer struct {
	samples []float32
	pos     int
}

func (s *sampleStreamer) Stream(buf [][2]float64) (int, bool) {
	if s.pos >= len(s.samples) {
		return 0, false
	}
	n := 0
	for n < len(buf) && s.pos < len(s.samples) {
		v := float64(s.samples[s.pos])
		buf[n][0], buf[n][1] = v, v
		n++
		s.pos++
	}
	return n, true
}

func (s *sampleStreamer) Err() error { return nil }

// encodeWAV writes samples as a 16-bit mono WAV file
func encodeWAV(w io.WriteSeeker, samples []float32, sampleRate int) error {
	format := beep.Format{
		SampleRate:  beep.SampleRate(sampleRate),
		NumChannels: 1,
		Precision:   2,
	}

	buffer := beep.NewBuffer(format)
	buffer.Append(&sampleStreamer{samples: samples})

	if err := wav.Encode(w, buffer.Streamer(0, buffer.Len()), format); err != nil {
		return fmt.Errorf("failed to encode wav: %w", err)
	}
	return nil
}
