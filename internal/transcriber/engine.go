package transcriber

import "errors"

// ErrEngineStopped is returned by engines that receive work after Stop
var ErrEngineStopped = errors.New("recognition engine stopped")

// ChunkID identifies one dispatched chunk. It is opaque to the scheduler.
type ChunkID string

// TokenTiming is a token as reported by the engine, relative to its chunk start
type TokenTiming struct {
	Text string
	T0   float64
	T1   float64
}

// Segment is one decoded span of speech within a chunk
type Segment struct {
	Text   string
	Tokens []TokenTiming
}

// Result is delivered zero or more times per chunk with Partial set, then exactly
// once with Partial unset. A non-nil Err ends the chunk as failed.
type Result struct {
	ChunkID  ChunkID
	Segments []Segment
	Partial  bool
	Err      error
}

// ResultCallback receives engine results. Engines invoke it from their own goroutines.
type ResultCallback func(Result)

// Engine is an asynchronous speech recogniser
type Engine interface {
	// Start loads the model; a failure here is fatal for the session.
	Start(modelPath string, useGPU bool, callback ResultCallback) error
	// Transcribe queues mono float32 samples and returns the chunk's id.
	Transcribe(samples []float32) (ChunkID, error)
	// Stop terminates the engine; no callbacks are delivered once it returns.
	Stop() error
}
