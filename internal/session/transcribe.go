package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"videocutter/internal/cache"
	"videocutter/internal/events"
	"videocutter/internal/subtitle"
	"videocutter/internal/transcriber"
)

// Transcribe recognises speech in the loaded video, or in window of it, in the
// background. Finished transcripts are served from the cache when one is configured.
func (s *Session) Transcribe(ctx context.Context, window *transcriber.Window) (*Job, error) {
	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return nil, ErrNoVideoLoaded
	}
	path := s.videoPath
	s.mu.Unlock()

	if s.opts.NewEngine == nil {
		return nil, errors.New("no recognition engine configured")
	}
	if !s.transcribing.CompareAndSwap(false, true) {
		return nil, ErrTranscriptionInProgress
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancelRun = cancel
	s.mu.Unlock()

	job := s.startJob("transcribe", func() error {
		defer s.transcribing.Store(false)
		defer func() {
			cancel()
			s.mu.Lock()
			s.cancelRun = nil
			s.mu.Unlock()
		}()

		summary, cached, err := s.transcribe(runCtx, path, window)
		if err != nil && runCtx.Err() != nil && ctx.Err() == nil {
			err = transcriber.ErrStopped
		}
		if err != nil {
			s.logger.Error("transcription failed", zap.String("path", path), zap.Error(err))
			s.bus.Publish(events.TranscriptionFailed{Err: err})
			return err
		}

		entries := subtitle.Build(summary.Tokens)
		s.mu.Lock()
		if s.videoPath == path {
			s.transcript = summary.Tokens
		}
		s.mu.Unlock()

		s.logger.Info("transcription finished",
			zap.Int("chunks", summary.TotalChunks),
			zap.Int("completed", summary.Completed),
			zap.Int("failed", len(summary.Failed)),
			zap.Int("tokens", len(summary.Tokens)),
			zap.Bool("cached", cached),
			zap.Duration("elapsed", summary.Elapsed))
		s.bus.Publish(events.TranscriptionDone{Summary: summary, Cached: cached, Subtitles: entries})
		return nil
	})

	s.mu.Lock()
	s.running = job
	s.mu.Unlock()
	return job, nil
}

func (s *Session) transcribe(ctx context.Context, path string, window *transcriber.Window) (transcriber.Summary, bool, error) {
	key, keyed := s.cacheKey(path, window)
	if keyed {
		tokens, ok, err := s.opts.Cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("transcript cache lookup failed", zap.Error(err))
		} else if ok {
			s.bus.Publish(events.TranscriptionProgress{Percent: 100})
			return transcriber.Summary{Tokens: tokens}, true, nil
		}
	}

	pcm, err := s.transcoder.ExtractAudio(ctx, path, s.opts.SampleRate, true)
	if err != nil {
		return transcriber.Summary{}, false, fmt.Errorf("failed to extract audio: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return transcriber.Summary{}, false, err
	}

	engine, err := s.opts.NewEngine()
	if err != nil {
		return transcriber.Summary{}, false, fmt.Errorf("failed to create recognition engine: %w", err)
	}

	opts := s.opts.Scheduler
	if opts.Monitor == nil {
		opts.Monitor = s.opts.Monitor
	}
	scheduler := transcriber.NewScheduler(engine, opts, s.logger)

	s.mu.Lock()
	s.scheduler = scheduler
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.scheduler == scheduler {
			s.scheduler = nil
		}
		s.mu.Unlock()
	}()

	summary, err := scheduler.Run(ctx, transcriber.Request{
		Samples:    pcm,
		SampleRate: s.opts.SampleRate,
		Window:     window,
	}, s.forward)
	if stopErr := scheduler.Stop(); stopErr != nil {
		s.logger.Warn("failed to stop scheduler", zap.Error(stopErr))
	}
	if err != nil {
		return transcriber.Summary{}, false, err
	}

	if keyed && len(summary.Failed) == 0 {
		if err := s.opts.Cache.Put(ctx, key, summary.Tokens); err != nil {
			s.logger.Warn("failed to cache transcript", zap.Error(err))
		}
	}
	return summary, false, nil
}

func (s *Session) forward(u transcriber.Update) {
	switch u.Kind {
	case transcriber.UpdateTokens:
		s.bus.Publish(events.TranscriptTokens{Chunk: u.ChunkIndex, Tokens: u.Tokens, Partial: u.Partial})
	case transcriber.UpdateProgress:
		s.bus.Publish(events.TranscriptionProgress{Percent: u.Progress})
	case transcriber.UpdateChunkFailed:
		s.bus.Publish(events.ChunkFailed{Chunk: u.ChunkIndex, Err: u.Err})
	}
}

// cacheKey hashes the media once per loaded video
func (s *Session) cacheKey(path string, window *transcriber.Window) (cache.Key, bool) {
	if s.opts.Cache == nil {
		return cache.Key{}, false
	}

	s.mu.Lock()
	hash := s.mediaHash
	s.mu.Unlock()

	if hash == "" {
		began := time.Now()
		h, err := cache.HashPath(path)
		if err != nil {
			s.logger.Warn("failed to hash media, cache disabled for this run", zap.Error(err))
			return cache.Key{}, false
		}
		hash = h
		s.logger.Debug("media hashed", zap.String("hash", hash), zap.Duration("took", time.Since(began)))

		s.mu.Lock()
		if s.videoPath == path {
			s.mediaHash = hash
		}
		s.mu.Unlock()
	}

	key := cache.Key{MediaHash: hash, Model: s.opts.Scheduler.ModelPath, WindowEnd: -1}
	if window != nil {
		key.WindowStart = window.Start
		key.WindowEnd = window.End
	}
	return key, true
}

// StopTranscription ends a running transcription at any stage; partial results are discarded
func (s *Session) StopTranscription() error {
	s.mu.Lock()
	scheduler := s.scheduler
	cancel := s.cancelRun
	s.mu.Unlock()

	if cancel == nil && scheduler == nil {
		return nil
	}
	s.logger.Info("stopping transcription")
	if cancel != nil {
		cancel()
	}
	if scheduler == nil {
		return nil
	}
	return scheduler.Stop()
}

// Transcribing reports whether a transcription is running
func (s *Session) Transcribing() bool {
	return s.transcribing.Load()
}
