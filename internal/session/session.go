package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"videocutter/internal/cache"
	"videocutter/internal/events"
	"videocutter/internal/media"
	"videocutter/internal/performance"
	"videocutter/internal/segments"
	"videocutter/internal/subtitle"
	"videocutter/internal/transcriber"
	"videocutter/internal/waveform"
)

var (
	// ErrNoVideoLoaded is returned by operations that need a loaded video
	ErrNoVideoLoaded = errors.New("no video loaded")
	// ErrExportInProgress is returned when an export is already running
	ErrExportInProgress = errors.New("export already in progress")
	// ErrTranscriptionInProgress is returned when a transcription is already running
	ErrTranscriptionInProgress = errors.New("transcription already in progress")
)

// Transcoder is the external media tool the session drives
type Transcoder interface {
	Probe(ctx context.Context, path string) (media.Info, error)
	ExtractAudio(ctx context.Context, path string, sampleRate int, mono bool) ([]int16, error)
	ExportWithCuts(ctx context.Context, in, out string, kept []segments.Range, progress media.ProgressFunc) error
}

// TranscriptCache stores finished transcripts
type TranscriptCache interface {
	Get(ctx context.Context, key cache.Key) ([]transcriber.Token, bool, error)
	Put(ctx context.Context, key cache.Key, tokens []transcriber.Token) error
	Close() error
}

// Player is the playback engine a presentation layer may bind
type Player interface {
	Play()
	Pause()
	Seek(seconds float64)
	Position() float64
	Duration() float64
}

// EngineFactory creates a fresh recognition engine for each transcription run
type EngineFactory func() (transcriber.Engine, error)

// Options configure a Session
type Options struct {
	SampleRate         int
	WaveformSampleRate int
	WaveformPoints     int
	Scheduler          transcriber.Options
	NewEngine          EngineFactory
	Cache              TranscriptCache
	Monitor            *performance.ChunkMonitor
}

// Session is one editing session over one video at a time. Segment state is guarded by a
// mutex; events are published after the lock is released.
type Session struct {
	id         string
	logger     *zap.Logger
	bus        *events.Bus
	transcoder Transcoder
	subtitles  *subtitle.Store
	opts       Options

	mu         sync.Mutex
	store      *segments.Store
	videoPath  string
	info       media.Info
	wave       waveform.Waveform
	subs       []subtitle.Entry
	transcript []transcriber.Token
	mediaHash  string
	loaded     bool
	scheduler  *transcriber.Scheduler
	cancelRun  context.CancelFunc
	running    *Job
	player     Player

	exporting    atomic.Bool
	transcribing atomic.Bool
	jobs         conc.WaitGroup
}

// New creates an empty session
func New(transcoder Transcoder, subtitles *subtitle.Store, bus *events.Bus, opts Options, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = events.NewBus(logger)
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	if opts.WaveformSampleRate <= 0 {
		opts.WaveformSampleRate = 44100
	}
	if opts.WaveformPoints <= 0 {
		opts.WaveformPoints = waveform.DefaultPoints
	}
	id := uuid.NewString()
	return &Session{
		id:         id,
		logger:     logger.With(zap.String("session_id", id)),
		bus:        bus,
		transcoder: transcoder,
		subtitles:  subtitles,
		opts:       opts,
		store:      segments.NewStore(0),
		subs:       []subtitle.Entry{},
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Bus returns the event bus the session publishes on
func (s *Session) Bus() *events.Bus {
	return s.bus
}

// Close stops background work and releases the cache
func (s *Session) Close() error {
	var err error
	if stopErr := s.StopTranscription(); stopErr != nil {
		err = multierr.Append(err, stopErr)
	}
	s.jobs.Wait()
	if s.opts.Cache != nil {
		err = multierr.Append(err, s.opts.Cache.Close())
	}
	s.logger.Info("session closed")
	return err
}

// VideoPath returns the loaded video, empty before the first load
func (s *Session) VideoPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoPath
}

// Info returns the probed metadata of the loaded video
func (s *Session) Info() media.Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Waveform returns the display waveform of the loaded video
func (s *Session) Waveform() waveform.Waveform {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wave
}

// Transcript returns the tokens of the last finished transcription
func (s *Session) Transcript() []transcriber.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]transcriber.Token, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Load opens path in the background. Progress moves through probe, audio, waveform and
// subtitles before VideoLoaded; any failure publishes LoadFailed and keeps the previous video.
func (s *Session) Load(ctx context.Context, path string) *Job {
	return s.startJob("load", func() error {
		if err := s.load(ctx, path); err != nil {
			s.logger.Error("failed to load video", zap.String("path", path), zap.Error(err))
			s.bus.Publish(events.LoadFailed{Path: path, Err: err})
			return err
		}
		return nil
	})
}

func (s *Session) load(ctx context.Context, path string) error {
	progress := func(percent float64, stage string) {
		s.bus.Publish(events.LoadProgress{Percent: percent, Stage: stage})
	}

	info, err := s.transcoder.Probe(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to probe video: %w", err)
	}
	progress(10, "probe")

	pcm, err := s.transcoder.ExtractAudio(ctx, path, s.opts.WaveformSampleRate, true)
	if err != nil {
		return fmt.Errorf("failed to extract audio: %w", err)
	}
	progress(30, "audio")

	wave := waveform.Build(pcm, s.opts.WaveformSampleRate, s.opts.WaveformPoints)
	progress(60, "waveform")

	subs := s.subtitles.Load(subtitle.PathFor(path))
	progress(90, "subtitles")

	if err := ctx.Err(); err != nil {
		return err
	}

	duration := info.Duration
	if duration <= 0 {
		duration = wave.Duration
	}

	if err := s.StopTranscription(); err != nil {
		s.logger.Warn("failed to stop previous transcription", zap.Error(err))
	}
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running != nil {
		select {
		case <-running.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	s.store.Reset(duration)
	s.videoPath = path
	s.info = info
	s.info.Duration = duration
	s.wave = wave
	s.subs = subs
	s.transcript = nil
	s.mediaHash = ""
	s.loaded = true
	s.mu.Unlock()

	progress(100, "done")
	s.logger.Info("video loaded",
		zap.String("path", path),
		zap.Float64("duration", duration),
		zap.Float64("fps", info.FPS),
		zap.Int("subtitles", len(subs)))
	s.bus.Publish(events.VideoLoaded{
		Path:      path,
		Duration:  duration,
		FPS:       info.FPS,
		Points:    len(wave.Samples),
		Subtitles: len(subs),
	})
	s.bus.Publish(events.DurationChanged{Seconds: duration})
	return nil
}

// BindPlayer attaches a playback engine
func (s *Session) BindPlayer(p Player) {
	s.mu.Lock()
	s.player = p
	s.mu.Unlock()
	if p != nil {
		s.bus.Publish(events.DurationChanged{Seconds: p.Duration()})
	}
}

// Seek moves the bound player and publishes the new position
func (s *Session) Seek(seconds float64) {
	s.mu.Lock()
	p := s.player
	s.mu.Unlock()
	if p != nil {
		p.Seek(seconds)
	}
	s.ReportPosition(seconds)
}

// ReportPosition publishes a playback position reported by the player
func (s *Session) ReportPosition(seconds float64) {
	s.bus.Publish(events.PositionChanged{Seconds: seconds})
}
