package transcriber

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Model runs recognition on a single chunk. Implementations block until the chunk is decoded.
type Model interface {
	Load(modelPath string, useGPU bool) error
	Transcribe(ctx context.Context, samples []float32) ([]Segment, error)
	Close() error
}

// PoolEngineOptions tune a PoolEngine
type PoolEngineOptions struct {
	Workers      int
	QueueSize    int
	EmitPartials bool
}

type job struct {
	id      ChunkID
	samples []float32
}

// PoolEngine implements Engine with a fixed pool of workers sharing one Model
type PoolEngine struct {
	logger *zap.Logger
	model  Model
	opts   PoolEngineOptions

	mu       sync.Mutex
	callback ResultCallback
	jobs     chan job
	ctx      context.Context
	cancel   context.CancelFunc
	wg       conc.WaitGroup

	started atomic.Bool
	stopped atomic.Bool
	pending atomic.Int64
}

// NewPoolEngine creates an engine over model
func NewPoolEngine(model Model, opts PoolEngineOptions, logger *zap.Logger) *PoolEngine {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PoolEngine{
		logger: logger,
		model:  model,
		opts:   opts,
	}
}

// Start loads the model and launches the workers
func (e *PoolEngine) Start(modelPath string, useGPU bool, callback ResultCallback) error {
	if e.stopped.Load() {
		return ErrEngineStopped
	}
	if !e.started.CompareAndSwap(false, true) {
		return fmt.Errorf("engine already started")
	}

	if err := e.model.Load(modelPath, useGPU); err != nil {
		e.stopped.Store(true)
		return fmt.Errorf("failed to load model %s: %w", modelPath, err)
	}

	e.mu.Lock()
	if e.stopped.Load() {
		e.mu.Unlock()
		if err := e.model.Close(); err != nil {
			e.logger.Warn("failed to close model", zap.Error(err))
		}
		return ErrEngineStopped
	}
	e.callback = callback
	e.jobs = make(chan job, e.opts.QueueSize)
	e.ctx, e.cancel = context.WithCancel(context.Background())
	for i := 0; i < e.opts.Workers; i++ {
		worker := i
		e.wg.Go(func() { e.work(worker) })
	}
	e.mu.Unlock()

	e.logger.Info("recognition engine started",
		zap.String("model", modelPath),
		zap.Bool("use_gpu", useGPU),
		zap.Int("workers", e.opts.Workers),
		zap.Bool("emit_partials", e.opts.EmitPartials))
	return nil
}

// Transcribe queues a chunk and returns its id. It blocks while the queue is full.
func (e *PoolEngine) Transcribe(samples []float32) (ChunkID, error) {
	if !e.started.Load() || e.stopped.Load() {
		return "", ErrEngineStopped
	}

	e.mu.Lock()
	ctx, jobs := e.ctx, e.jobs
	e.mu.Unlock()
	// still loading the model
	if jobs == nil {
		return "", ErrEngineStopped
	}

	id := ChunkID(uuid.NewString())
	select {
	case jobs <- job{id: id, samples: samples}:
		e.pending.Inc()
		return id, nil
	case <-ctx.Done():
		return "", ErrEngineStopped
	}
}

// Pending returns the number of queued or running chunks
func (e *PoolEngine) Pending() int64 {
	return e.pending.Load()
}

// Stop cancels queued work, waits for the workers and closes the model
func (e *PoolEngine) Stop() error {
	if !e.stopped.CompareAndSwap(false, true) {
		return nil
	}
	if !e.started.Load() {
		return nil
	}

	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	e.wg.Wait()

	if err := e.model.Close(); err != nil {
		return fmt.Errorf("failed to close model: %w", err)
	}
	e.logger.Info("recognition engine stopped")
	return nil
}

func (e *PoolEngine) work(worker int) {
	for {
		select {
		case <-e.ctx.Done():
			return
		case j := <-e.jobs:
			e.process(worker, j)
			e.pending.Dec()
		}
	}
}

func (e *PoolEngine) process(worker int, j job) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("recognition worker panic recovered",
				zap.Int("worker", worker),
				zap.String("chunk_id", string(j.id)),
				zap.Any("panic", r))
			e.deliver(Result{ChunkID: j.id, Err: fmt.Errorf("recognition panicked: %v", r)})
		}
	}()

	segments, err := e.model.Transcribe(e.ctx, j.samples)
	if e.ctx.Err() != nil {
		return
	}
	if err != nil {
		e.logger.Warn("chunk recognition failed",
			zap.Int("worker", worker),
			zap.String("chunk_id", string(j.id)),
			zap.Error(err))
		e.deliver(Result{ChunkID: j.id, Err: err})
		return
	}

	if e.opts.EmitPartials {
		for i := 1; i < len(segments); i++ {
			e.deliver(Result{ChunkID: j.id, Segments: segments[:i], Partial: true})
		}
	}
	e.deliver(Result{ChunkID: j.id, Segments: segments})
}

// deliver invokes the callback unless the engine is stopping
func (e *PoolEngine) deliver(r Result) {
	if e.ctx.Err() != nil {
		return
	}
	e.callback(r)
}
