package transcriber

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"videocutter/internal/performance"
)

var (
	// ErrStopped is returned by Run when the scheduler was stopped before every chunk retired
	ErrStopped = errors.New("transcription stopped")
	// ErrChunkTimeout marks a chunk whose final result did not arrive in time
	ErrChunkTimeout = errors.New("chunk timed out")
)

const (
	// DefaultChunkTimeout bounds how long a dispatched chunk may stay outstanding
	DefaultChunkTimeout = 2 * time.Minute
	// DefaultMaxInFlight bounds how many chunks are outstanding at once
	DefaultMaxInFlight = 4
)

// Options tune a Scheduler
type Options struct {
	ModelPath     string
	UseGPU        bool
	ChunkDuration time.Duration
	ChunkTimeout  time.Duration
	MaxInFlight   int
	// Monitor records per-chunk latency when set
	Monitor *performance.ChunkMonitor
}

func (o Options) withDefaults() Options {
	if o.ChunkDuration <= 0 {
		o.ChunkDuration = DefaultChunkDuration
	}
	if o.ChunkTimeout <= 0 {
		o.ChunkTimeout = DefaultChunkTimeout
	}
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = DefaultMaxInFlight
	}
	return o
}

// Request is the audio to transcribe: mono int16 PCM, optionally restricted to a window
type Request struct {
	Samples    []int16
	SampleRate int
	Window     *Window
}

// UpdateKind discriminates scheduler updates
type UpdateKind int

const (
	// UpdateTokens carries a batch of absolute-time tokens
	UpdateTokens UpdateKind = iota
	// UpdateProgress carries the retired percentage
	UpdateProgress
	// UpdateChunkFailed reports a chunk that errored or timed out
	UpdateChunkFailed
	// UpdateDone is the terminal update and carries the run summary
	UpdateDone
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateTokens:
		return "tokens"
	case UpdateProgress:
		return "progress"
	case UpdateChunkFailed:
		return "chunk_failed"
	case UpdateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Update is one message on the scheduler's output stream
type Update struct {
	Kind       UpdateKind
	ChunkIndex int
	Tokens     []Token
	Partial    bool
	Progress   float64
	Err        error
	Summary    *Summary
}

// FailedChunk describes a chunk that contributed no final tokens
type FailedChunk struct {
	Index        int
	StartSeconds float64
	Err          error
}

// Summary describes a finished run
type Summary struct {
	TotalChunks int
	Completed   int
	Failed      []FailedChunk
	// Tokens holds the final tokens of every completed chunk ordered by start time
	Tokens  []Token
	Elapsed time.Duration
}

type registration struct {
	chunk Chunk
	id    ChunkID
	err   error
}

type chunkState struct {
	chunk Chunk
	timer *time.Timer
	perf  *performance.ChunkTimer
}

// Scheduler splits audio into chunks, feeds them to an Engine and reassembles the
// engine's out-of-order results. All mutable run state is owned by one loop goroutine;
// engine callbacks, dispatch registrations and timeouts reach it through channels.
// A Scheduler runs once.
type Scheduler struct {
	logger *zap.Logger
	engine Engine
	opts   Options

	started  atomic.Bool
	stopOnce sync.Once
	stopErr  error
	stopCh   chan struct{}
	wg       conc.WaitGroup

	engineStarted atomic.Bool

	results       chan Result
	registrations chan registration
	timeouts      chan ChunkID
	slots         chan struct{}
}

// NewScheduler creates a Scheduler driving engine
func NewScheduler(engine Engine, opts Options, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	return &Scheduler{
		logger:        logger,
		engine:        engine,
		opts:          opts,
		stopCh:        make(chan struct{}),
		results:       make(chan Result, 64),
		registrations: make(chan registration),
		timeouts:      make(chan ChunkID),
		slots:         make(chan struct{}, opts.MaxInFlight),
	}
}

// Start partitions the request, starts the engine and begins dispatching. The returned
// channel is closed when the run ends; it carries UpdateDone only if every chunk retired.
func (s *Scheduler) Start(ctx context.Context, req Request) (<-chan Update, error) {
	if !s.started.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("scheduler already started")
	}
	select {
	case <-s.stopCh:
		return nil, ErrStopped
	default:
	}

	chunks, err := Partition(req.Samples, req.SampleRate, req.Window, s.opts.ChunkDuration)
	if err != nil {
		s.halt()
		return nil, fmt.Errorf("failed to partition audio: %w", err)
	}

	if len(chunks) > 0 {
		if err := s.engine.Start(s.opts.ModelPath, s.opts.UseGPU, s.onResult); err != nil {
			s.halt()
			return nil, fmt.Errorf("failed to start recognition engine: %w", err)
		}
		s.engineStarted.Store(true)
	}

	s.logger.Info("transcription started",
		zap.Int("chunks", len(chunks)),
		zap.Duration("chunk_duration", s.opts.ChunkDuration),
		zap.Int("max_in_flight", s.opts.MaxInFlight))

	updates := make(chan Update, 16)
	s.wg.Go(func() { s.loop(ctx, chunks, req.SampleRate, updates) })
	s.wg.Go(func() { s.dispatch(ctx, chunks, req.Samples) })

	return updates, nil
}

// Run starts the scheduler and passes every update to fn until the run ends
func (s *Scheduler) Run(ctx context.Context, req Request, fn func(Update)) (Summary, error) {
	updates, err := s.Start(ctx, req)
	if err != nil {
		return Summary{}, err
	}

	var summary *Summary
	for u := range updates {
		if fn != nil {
			fn(u)
		}
		if u.Kind == UpdateDone {
			summary = u.Summary
		}
	}

	if summary == nil {
		if ctx.Err() != nil {
			return Summary{}, ctx.Err()
		}
		return Summary{}, ErrStopped
	}
	return *summary, nil
}

// Stop terminates the engine and ends the run. Callbacks racing with Stop are dropped.
// It is safe to call more than once and from any goroutine other than an engine callback.
func (s *Scheduler) Stop() error {
	s.halt()
	if s.started.Load() {
		s.wg.Wait()
	}
	return s.stopErr
}

func (s *Scheduler) halt() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.engineStarted.Load() {
			if err := s.engine.Stop(); err != nil {
				s.stopErr = fmt.Errorf("failed to stop recognition engine: %w", err)
				s.logger.Warn("recognition engine stop failed", zap.Error(err))
			}
		}
	})
}

func (s *Scheduler) stopped() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// onResult is the engine callback
func (s *Scheduler) onResult(r Result) {
	select {
	case s.results <- r:
	case <-s.stopCh:
	}
}

func (s *Scheduler) dispatch(ctx context.Context, chunks []Chunk, pcm []int16) {
	for _, c := range chunks {
		select {
		case s.slots <- struct{}{}:
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}

		id, err := s.engine.Transcribe(c.Float32(pcm))
		if err != nil {
			err = fmt.Errorf("failed to dispatch chunk %d: %w", c.Index, err)
		}

		select {
		case s.registrations <- registration{chunk: c, id: id, err: err}:
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// run holds the state owned by the loop goroutine
type run struct {
	total       int
	sampleRate  int
	outstanding map[ChunkID]*chunkState
	retired     map[ChunkID]struct{}
	parked      map[ChunkID][]Result
	completed   int
	failed      []FailedChunk
	final       []Token
	began       time.Time
}

func (s *Scheduler) loop(ctx context.Context, chunks []Chunk, sampleRate int, updates chan<- Update) {
	defer close(updates)
	defer s.halt()

	r := &run{
		total:       len(chunks),
		sampleRate:  sampleRate,
		outstanding: make(map[ChunkID]*chunkState),
		retired:     make(map[ChunkID]struct{}),
		parked:      make(map[ChunkID][]Result),
		began:       time.Now(),
	}

	emit := func(u Update) bool {
		select {
		case updates <- u:
			return true
		case <-s.stopCh:
			return false
		case <-ctx.Done():
			return false
		}
	}

	defer func() {
		for _, st := range r.outstanding {
			st.timer.Stop()
		}
	}()

	if r.total == 0 {
		if emit(Update{Kind: UpdateProgress, Progress: 100}) {
			emit(Update{Kind: UpdateDone, Summary: r.summary()})
		}
		return
	}

	for {
		if s.stopped() {
			return
		}

		var ok bool
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			s.logger.Info("transcription cancelled", zap.Error(ctx.Err()))
			return
		case reg := <-s.registrations:
			ok = s.register(r, reg, emit)
		case res := <-s.results:
			ok = s.handleResult(r, res, emit)
		case id := <-s.timeouts:
			ok = true
			if st, exists := r.outstanding[id]; exists {
				s.logger.Warn("chunk timed out",
					zap.Int("chunk", st.chunk.Index),
					zap.Duration("timeout", s.opts.ChunkTimeout))
				ok = s.retire(r, id, st, fmt.Errorf("chunk %d: %w", st.chunk.Index, ErrChunkTimeout), emit)
			}
		}
		if !ok {
			return
		}

		if r.completed+len(r.failed) == r.total {
			summary := r.summary()
			s.logger.Info("transcription finished",
				zap.Int("completed", summary.Completed),
				zap.Int("failed", len(summary.Failed)),
				zap.Int("tokens", len(summary.Tokens)),
				zap.Duration("elapsed", summary.Elapsed))
			emit(Update{Kind: UpdateDone, Summary: summary})
			return
		}
	}
}

func (s *Scheduler) register(r *run, reg registration, emit func(Update) bool) bool {
	if reg.err != nil {
		s.releaseSlot()
		s.logger.Error("chunk dispatch failed", zap.Int("chunk", reg.chunk.Index), zap.Error(reg.err))
		return s.fail(r, reg.chunk, reg.err, emit)
	}
	_, live := r.outstanding[reg.id]
	_, done := r.retired[reg.id]
	if live || done {
		s.releaseSlot()
		return s.fail(r, reg.chunk, fmt.Errorf("engine reused chunk id %q", reg.id), emit)
	}

	id := reg.id
	st := &chunkState{chunk: reg.chunk}
	if s.opts.Monitor != nil {
		st.perf = s.opts.Monitor.StartChunk(float64(reg.chunk.Length)/float64(r.sampleRate), s.opts.UseGPU)
	}
	st.timer = time.AfterFunc(s.opts.ChunkTimeout, func() {
		select {
		case s.timeouts <- id:
		case <-s.stopCh:
		}
	})
	r.outstanding[id] = st

	s.logger.Debug("chunk dispatched",
		zap.Int("chunk", reg.chunk.Index),
		zap.String("chunk_id", string(id)),
		zap.Float64("start_seconds", reg.chunk.StartSeconds))

	parked := r.parked[id]
	delete(r.parked, id)
	for _, res := range parked {
		if !s.handleResult(r, res, emit) {
			return false
		}
	}
	return true
}

func (s *Scheduler) handleResult(r *run, res Result, emit func(Update) bool) bool {
	if _, done := r.retired[res.ChunkID]; done {
		s.logger.Debug("dropping result for retired chunk", zap.String("chunk_id", string(res.ChunkID)))
		return true
	}

	st, exists := r.outstanding[res.ChunkID]
	if !exists {
		// The callback beat the dispatcher's registration.
		r.parked[res.ChunkID] = append(r.parked[res.ChunkID], res)
		return true
	}

	if res.Err != nil {
		return s.retire(r, res.ChunkID, st, fmt.Errorf("chunk %d: %w", st.chunk.Index, res.Err), emit)
	}

	tokens := absoluteTokens(st.chunk.StartSeconds, res.Segments)
	if len(tokens) > 0 {
		if !emit(Update{Kind: UpdateTokens, ChunkIndex: st.chunk.Index, Tokens: tokens, Partial: res.Partial}) {
			return false
		}
	}

	if res.Partial {
		return true
	}
	r.final = append(r.final, tokens...)
	return s.retire(r, res.ChunkID, st, nil, emit)
}

// retire removes id from the outstanding set exactly once and reports progress
func (s *Scheduler) retire(r *run, id ChunkID, st *chunkState, err error, emit func(Update) bool) bool {
	st.timer.Stop()
	delete(r.outstanding, id)
	r.retired[id] = struct{}{}
	s.releaseSlot()

	if s.opts.Monitor != nil && st.perf != nil {
		s.opts.Monitor.EndChunk(st.perf, err != nil)
	}

	if err != nil {
		return s.fail(r, st.chunk, err, emit)
	}

	r.completed++
	return emit(Update{Kind: UpdateProgress, Progress: r.progress()})
}

func (s *Scheduler) releaseSlot() {
	select {
	case <-s.slots:
	default:
	}
}

// fail records a chunk that never became outstanding or that errored
func (s *Scheduler) fail(r *run, c Chunk, err error, emit func(Update) bool) bool {
	r.failed = append(r.failed, FailedChunk{Index: c.Index, StartSeconds: c.StartSeconds, Err: err})
	if !emit(Update{Kind: UpdateChunkFailed, ChunkIndex: c.Index, Err: err}) {
		return false
	}
	return emit(Update{Kind: UpdateProgress, Progress: r.progress()})
}

func (r *run) progress() float64 {
	if r.total == 0 {
		return 100
	}
	retired := r.completed + len(r.failed)
	if retired == r.total {
		return 100
	}
	return float64(retired) / float64(r.total) * 100
}

func (r *run) summary() *Summary {
	tokens := make([]Token, len(r.final))
	copy(tokens, r.final)
	sort.SliceStable(tokens, func(i, j int) bool { return tokens[i].Start < tokens[j].Start })

	failed := make([]FailedChunk, len(r.failed))
	copy(failed, r.failed)
	sort.Slice(failed, func(i, j int) bool { return failed[i].Index < failed[j].Index })

	return &Summary{
		TotalChunks: r.total,
		Completed:   r.completed,
		Failed:      failed,
		Tokens:      tokens,
		Elapsed:     time.Since(r.began),
	}
}
