package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"videocutter/internal/cache"
	"videocutter/internal/events"
	"videocutter/internal/media"
	"videocutter/internal/performance"
	"videocutter/internal/segments"
	"videocutter/internal/subtitle"
	"videocutter/internal/transcriber"
)

type fakeTranscoder struct {
	mu         sync.Mutex
	info       media.Info
	probeErr   error
	pcm        []int16
	extractErr error
	exportErr  error
	extracts   int
	exported   []segments.Range
	release    chan struct{}
	// gate blocks the next ExtractAudio call until closed; entered is signalled on entry
	gate      chan struct{}
	entered   chan struct{}
	ignoreCtx bool
}

func (f *fakeTranscoder) Probe(ctx context.Context, path string) (media.Info, error) {
	return f.info, f.probeErr
}

func (f *fakeTranscoder) ExtractAudio(ctx context.Context, path string, sampleRate int, mono bool) ([]int16, error) {
	f.mu.Lock()
	f.extracts++
	gate, entered, ignoreCtx := f.gate, f.entered, f.ignoreCtx
	f.gate = nil
	pcm, err := f.pcm, f.extractErr
	f.mu.Unlock()

	if gate != nil {
		close(entered)
		if ignoreCtx {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return pcm, err
}

// holdExtraction makes the next ExtractAudio call block until the returned release is called
func (f *fakeTranscoder) holdExtraction(ignoreCtx bool) (entered <-chan struct{}, release func()) {
	gate := make(chan struct{})
	in := make(chan struct{})
	f.mu.Lock()
	f.gate, f.entered, f.ignoreCtx = gate, in, ignoreCtx
	f.mu.Unlock()
	var once sync.Once
	return in, func() { once.Do(func() { close(gate) }) }
}

func (f *fakeTranscoder) ExportWithCuts(ctx context.Context, in, out string, kept []segments.Range, progress media.ProgressFunc) error {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	f.exported = kept
	f.mu.Unlock()
	if f.exportErr != nil {
		return f.exportErr
	}
	progress(50)
	progress(100)
	return nil
}

func (f *fakeTranscoder) extractCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.extracts
}

type wordModel struct {
	block bool
}

func (m *wordModel) Load(modelPath string, useGPU bool) error { return nil }

func (m *wordModel) Transcribe(ctx context.Context, samples []float32) ([]transcriber.Segment, error) {
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return []transcriber.Segment{{
		Text:   "hello",
		Tokens: []transcriber.TokenTiming{{Text: "hello", T0: 0.1, T1: 0.4}},
	}}, nil
}

func (m *wordModel) Close() error { return nil }

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func record(bus *events.Bus) *recorder {
	r := &recorder{}
	bus.Subscribe(func(e events.Event) {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
	})
	return r
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Name())
	}
	return out
}

func (r *recorder) last(name string) events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Name() == name {
			return r.events[i]
		}
	}
	return nil
}

type fakePlayer struct {
	seeked float64
}

func (p *fakePlayer) Play()                {}
func (p *fakePlayer) Pause()               {}
func (p *fakePlayer) Seek(seconds float64) { p.seeked = seconds }
func (p *fakePlayer) Position() float64    { return p.seeked }
func (p *fakePlayer) Duration() float64    { return 3 }

// threeSeconds is 3 s of audio at 10 Hz, which the scheduler splits into three 1 s chunks
func threeSeconds() []int16 {
	pcm := make([]int16, 30)
	for i := range pcm {
		pcm[i] = int16(i * 100)
	}
	return pcm
}

func newTestSession(t *testing.T, tc *fakeTranscoder, model transcriber.Model, c TranscriptCache) (*Session, *recorder, afero.Fs) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	fs := afero.NewMemMapFs()
	bus := events.NewBus(logger)
	rec := record(bus)

	opts := Options{
		SampleRate:         10,
		WaveformSampleRate: 10,
		WaveformPoints:     10,
		Scheduler: transcriber.Options{
			ModelPath:     "models/ggml-test.bin",
			ChunkDuration: time.Second,
			ChunkTimeout:  5 * time.Second,
		},
		Cache:   c,
		Monitor: performance.NewChunkMonitor(logger),
	}
	if model != nil {
		opts.NewEngine = func() (transcriber.Engine, error) {
			return transcriber.NewPoolEngine(model, transcriber.PoolEngineOptions{Workers: 2}, logger), nil
		}
	}

	s := New(tc, subtitle.NewStore(fs, logger), bus, opts, logger)
	t.Cleanup(func() { _ = s.Close() })
	return s, rec, fs
}

func loadedSession(t *testing.T, tc *fakeTranscoder, model transcriber.Model, c TranscriptCache, path string) (*Session, *recorder, afero.Fs) {
	t.Helper()
	s, rec, fs := newTestSession(t, tc, model, c)
	require.NoError(t, s.Load(context.Background(), path).Wait())
	return s, rec, fs
}

func TestSessionLoad(t *testing.T) {
	t.Run("should publish progress stages then VideoLoaded", func(t *testing.T) {
		// Arrange
		tc := &fakeTranscoder{info: media.Info{Duration: 3, FPS: 25, HasAudio: true}, pcm: threeSeconds()}
		s, rec, _ := newTestSession(t, tc, nil, nil)

		// Act
		err := s.Load(context.Background(), "/videos/talk.mp4").Wait()

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "/videos/talk.mp4", s.VideoPath())
		assert.Equal(t, 3.0, s.Info().Duration)
		assert.Len(t, s.Waveform().Samples, 10)

		var stages []string
		rec.mu.Lock()
		for _, e := range rec.events {
			if p, ok := e.(events.LoadProgress); ok {
				stages = append(stages, p.Stage)
			}
		}
		rec.mu.Unlock()
		assert.Equal(t, []string{"probe", "audio", "waveform", "subtitles", "done"}, stages)

		loaded, ok := rec.last("video_loaded").(events.VideoLoaded)
		require.True(t, ok)
		assert.Equal(t, 25.0, loaded.FPS)
		assert.Equal(t, 0, loaded.Subtitles)
	})

	t.Run("should fall back to the waveform duration when probe reports none", func(t *testing.T) {
		// Arrange
		tc := &fakeTranscoder{pcm: threeSeconds()}

		// Act
		s, _, _ := loadedSession(t, tc, nil, nil, "/videos/talk.mp4")

		// Assert
		assert.InDelta(t, 3.0, s.Snapshot().Duration, 1e-9)
	})

	t.Run("should publish LoadFailed and keep no video on probe error", func(t *testing.T) {
		// Arrange
		tc := &fakeTranscoder{probeErr: errors.New("moov atom not found")}
		s, rec, _ := newTestSession(t, tc, nil, nil)

		// Act
		err := s.Load(context.Background(), "/videos/broken.mp4").Wait()

		// Assert
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to probe video")
		assert.Equal(t, "", s.VideoPath())
		_, ok := rec.last("load_failed").(events.LoadFailed)
		assert.True(t, ok)

		_, markErr := s.AddMarker(1, segments.Start)
		assert.ErrorIs(t, markErr, ErrNoVideoLoaded)
	})

	t.Run("should load existing subtitles from the side-file", func(t *testing.T) {
		// Arrange
		tc := &fakeTranscoder{info: media.Info{Duration: 3}, pcm: threeSeconds()}
		s, _, fs := newTestSession(t, tc, nil, nil)
		store := subtitle.NewStore(fs, nil)
		require.NoError(t, store.Save(subtitle.PathFor("/videos/talk.mp4"), []subtitle.Entry{{Start: 0, End: 1, Text: "hi"}}))

		// Act
		require.NoError(t, s.Load(context.Background(), "/videos/talk.mp4").Wait())

		// Assert
		assert.Equal(t, []subtitle.Entry{{Start: 0, End: 1, Text: "hi"}}, s.Subtitles())
	})

	t.Run("should reset markers and deletions when a new video is loaded", func(t *testing.T) {
		// Arrange
		tc := &fakeTranscoder{info: media.Info{Duration: 3}, pcm: threeSeconds()}
		s, _, _ := loadedSession(t, tc, nil, nil, "/videos/a.mp4")
		_, _ = s.AddMarker(0.5, segments.Start)
		_, _ = s.AddMarker(1.5, segments.End)
		_, err := s.CommitDeletion()
		require.NoError(t, err)

		// Act
		require.NoError(t, s.Load(context.Background(), "/videos/b.mp4").Wait())

		// Assert
		assert.Empty(t, s.Markers())
		assert.Empty(t, s.DeletedSegments())
	})
}

func TestSessionEditing(t *testing.T) {
	t.Run("should publish marker and selection events", func(t *testing.T) {
		// Arrange
		tc := &fakeTranscoder{info: media.Info{Duration: 3}, pcm: threeSeconds()}
		s, rec, _ := loadedSession(t, tc, nil, nil, "/videos/talk.mp4")

		// Act
		_, err := s.AddMarker(1, segments.Start)
		require.NoError(t, err)
		_, err = s.AddMarker(2, segments.End)
		require.NoError(t, err)

		// Assert
		sel, ok := s.Selection()
		require.True(t, ok)
		assert.Equal(t, segments.Range{Start: 1, End: 2}, sel)

		changed, ok := rec.last("selection_changed").(events.SelectionChanged)
		require.True(t, ok)
		assert.True(t, changed.Valid)
		assert.Equal(t, sel, changed.Selection)
	})

	t.Run("should commit, undo and clear deletions", func(t *testing.T) {
		// Arrange
		tc := &fakeTranscoder{info: media.Info{Duration: 3}, pcm: threeSeconds()}
		s, rec, _ := loadedSession(t, tc, nil, nil, "/videos/talk.mp4")
		_, _ = s.AddMarker(0.5, segments.Start)
		_, _ = s.AddMarker(1.0, segments.End)

		// Act
		deleted, err := s.CommitDeletion()

		// Assert
		require.NoError(t, err)
		assert.Equal(t, segments.Range{Start: 0.5, End: 1.0}, deleted)
		assert.Empty(t, s.Markers())
		assert.Equal(t, []segments.Range{{Start: 0, End: 0.5}, {Start: 1.0, End: 3}}, s.KeptSegments())

		undone, ok := s.UndoLastDeletion()
		assert.True(t, ok)
		assert.Equal(t, deleted, undone)
		assert.Empty(t, s.DeletedSegments())

		s.ClearDeletions()
		assert.Contains(t, rec.names(), "segment_deleted")
		assert.Contains(t, rec.names(), "deletion_undone")
		assert.Contains(t, rec.names(), "deletions_cleared")
	})

	t.Run("should return ErrNothingToDelete without a selection", func(t *testing.T) {
		// Arrange
		tc := &fakeTranscoder{info: media.Info{Duration: 3}, pcm: threeSeconds()}
		s, rec, _ := loadedSession(t, tc, nil, nil, "/videos/talk.mp4")

		// Act
		_, err := s.CommitDeletion()

		// Assert
		assert.ErrorIs(t, err, segments.ErrNothingToDelete)
		assert.NotContains(t, rec.names(), "segment_deleted")
	})

	t.Run("should remove the last marker and find nearby markers", func(t *testing.T) {
		// Arrange
		tc := &fakeTranscoder{info: media.Info{Duration: 3}, pcm: threeSeconds()}
		s, _, _ := loadedSession(t, tc, nil, nil, "/videos/talk.mp4")
		_, _ = s.AddMarker(1, segments.Start)
		_, _ = s.AddMarker(2, segments.End)

		// Act
		near, found := s.NearestMarker(1.2, segments.DefaultNearbyThreshold)
		removed, ok := s.RemoveLastMarker()

		// Assert
		assert.True(t, found)
		assert.Equal(t, segments.Start, near.Kind)
		assert.True(t, ok)
		assert.Equal(t, segments.End, removed.Kind)
		assert.Len(t, s.Markers(), 1)
	})

	t.Run("should forward seeks to the bound player", func(t *testing.T) {
		// Arrange
		tc := &fakeTranscoder{info: media.Info{Duration: 3}, pcm: threeSeconds()}
		s, rec, _ := loadedSession(t, tc, nil, nil, "/videos/talk.mp4")
		player := &fakePlayer{}
		s.BindPlayer(player)

		// Act
		s.Seek(1.5)

		// Assert
		assert.Equal(t, 1.5, player.seeked)
		pos, ok := rec.last("position_changed").(events.PositionChanged)
		require.True(t, ok)
		assert.Equal(t, 1.5, pos.Seconds)
	})
}

func TestSessionExport(t *testing.T) {
	t.Run("should export the kept segments and publish progress", func(t *testing.T) {
		// Arrange
		tc := &fakeTranscoder{info: media.Info{Duration: 3}, pcm: threeSeconds()}
		s, rec, _ := loadedSession(t, tc, nil, nil, "/videos/talk.mp4")
		_, _ = s.AddMarker(1, segments.Start)
		_, _ = s.AddMarker(2, segments.End)
		_, _ = s.CommitDeletion()

		// Act
		job, err := s.Export(context.Background(), "/videos/talk_cut.mp4")
		require.NoError(t, err)
		require.NoError(t, job.Wait())

		// Assert
		want := []segments.Range{{Start: 0, End: 1}, {Start: 2, End: 3}}
		assert.Equal(t, want, tc.exported)
		finished, ok := rec.last("export_finished").(events.ExportFinished)
		require.True(t, ok)
		assert.Equal(t, want, finished.Kept)
		assert.InDelta(t, 2.0, finished.Duration, 1e-9)
		assert.Contains(t, rec.names(), "export_progress")
		assert.False(t, s.Exporting())
	})

	t.Run("should reject a second export while one is running", func(t *testing.T) {
		// Arrange
		tc := &fakeTranscoder{info: media.Info{Duration: 3}, pcm: threeSeconds(), release: make(chan struct{})}
		s, _, _ := loadedSession(t, tc, nil, nil, "/videos/talk.mp4")
		job, err := s.Export(context.Background(), "/videos/out.mp4")
		require.NoError(t, err)

		// Act
		_, err = s.Export(context.Background(), "/videos/out2.mp4")

		// Assert
		assert.ErrorIs(t, err, ErrExportInProgress)
		close(tc.release)
		require.NoError(t, job.Wait())
	})

	t.Run("should publish ExportFailed with the transcoder error", func(t *testing.T) {
		// Arrange
		tc := &fakeTranscoder{info: media.Info{Duration: 3}, pcm: threeSeconds(), exportErr: media.ErrNothingToExport}
		s, rec, _ := loadedSession(t, tc, nil, nil, "/videos/talk.mp4")

		// Act
		job, err := s.Export(context.Background(), "/videos/out.mp4")
		require.NoError(t, err)
		err = job.Wait()

		// Assert
		assert.ErrorIs(t, err, media.ErrNothingToExport)
		failed, ok := rec.last("export_failed").(events.ExportFailed)
		require.True(t, ok)
		assert.ErrorIs(t, failed.Err, media.ErrNothingToExport)
	})

	t.Run("should refuse to export without a video", func(t *testing.T) {
		// Arrange
		s, _, _ := newTestSession(t, &fakeTranscoder{}, nil, nil)

		// Act
		_, err := s.Export(context.Background(), "/videos/out.mp4")

		// Assert
		assert.ErrorIs(t, err, ErrNoVideoLoaded)
	})
}

func TestSessionTranscribe(t *testing.T) {
	t.Run("should transcribe every chunk and build subtitles", func(t *testing.T) {
		// Arrange
		tc := &fakeTranscoder{info: media.Info{Duration: 3}, pcm: threeSeconds()}
		s, rec, _ := loadedSession(t, tc, &wordModel{}, nil, "/videos/talk.mp4")

		// Act
		job, err := s.Transcribe(context.Background(), nil)
		require.NoError(t, err)
		require.NoError(t, job.Wait())

		// Assert
		done, ok := rec.last("transcription_done").(events.TranscriptionDone)
		require.True(t, ok)
		assert.False(t, done.Cached)
		assert.Equal(t, 3, done.Summary.TotalChunks)
		assert.Equal(t, 3, done.Summary.Completed)
		require.Len(t, done.Summary.Tokens, 3)
		assert.InDelta(t, 0.1, done.Summary.Tokens[0].Start, 1e-9)
		assert.InDelta(t, 2.1, done.Summary.Tokens[2].Start, 1e-9)
		assert.NotEmpty(t, done.Subtitles)
		assert.Len(t, s.Transcript(), 3)

		progress, ok := rec.last("transcription_progress").(events.TranscriptionProgress)
		require.True(t, ok)
		assert.Equal(t, 100.0, progress.Percent)
		assert.Contains(t, rec.names(), "transcript_tokens")
		assert.False(t, s.Transcribing())
	})

	t.Run("should serve the second run from the cache", func(t *testing.T) {
		// Arrange
		video := filepath.Join(t.TempDir(), "talk.mp4")
		require.NoError(t, os.WriteFile(video, []byte("not really a video"), 0o644))
		c, err := cache.Open(":memory:", zaptest.NewLogger(t))
		require.NoError(t, err)
		tc := &fakeTranscoder{info: media.Info{Duration: 3}, pcm: threeSeconds()}
		s, rec, _ := loadedSession(t, tc, &wordModel{}, c, video)

		first, err := s.Transcribe(context.Background(), nil)
		require.NoError(t, err)
		require.NoError(t, first.Wait())
		extracts := tc.extractCount()

		// Act
		second, err := s.Transcribe(context.Background(), nil)
		require.NoError(t, err)
		require.NoError(t, second.Wait())

		// Assert
		done, ok := rec.last("transcription_done").(events.TranscriptionDone)
		require.True(t, ok)
		assert.True(t, done.Cached)
		assert.Len(t, done.Summary.Tokens, 3)
		assert.Equal(t, extracts, tc.extractCount())
	})

	t.Run("should publish TranscriptionFailed when stopped", func(t *testing.T) {
		// Arrange
		tc := &fakeTranscoder{info: media.Info{Duration: 3}, pcm: threeSeconds()}
		s, rec, _ := loadedSession(t, tc, &wordModel{block: true}, nil, "/videos/talk.mp4")
		job, err := s.Transcribe(context.Background(), nil)
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.scheduler != nil
		}, time.Second, 5*time.Millisecond)

		// Act
		require.NoError(t, s.StopTranscription())
		err = job.Wait()

		// Assert
		assert.ErrorIs(t, err, transcriber.ErrStopped)
		_, ok := rec.last("transcription_failed").(events.TranscriptionFailed)
		assert.True(t, ok)
		assert.NotContains(t, rec.names(), "transcription_done")
	})

	t.Run("should reject a concurrent transcription", func(t *testing.T) {
		// Arrange
		tc := &fakeTranscoder{info: media.Info{Duration: 3}, pcm: threeSeconds()}
		s, _, _ := loadedSession(t, tc, &wordModel{block: true}, nil, "/videos/talk.mp4")
		job, err := s.Transcribe(context.Background(), nil)
		require.NoError(t, err)

		// Act
		_, err = s.Transcribe(context.Background(), nil)

		// Assert
		assert.ErrorIs(t, err, ErrTranscriptionInProgress)
		require.Eventually(t, func() bool {
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.scheduler != nil
		}, time.Second, 5*time.Millisecond)
		require.NoError(t, s.StopTranscription())
		_ = job.Wait()
	})

	t.Run("should stop while audio is still being extracted", func(t *testing.T) {
		// Arrange
		tc := &fakeTranscoder{info: media.Info{Duration: 3}, pcm: threeSeconds()}
		s, rec, _ := loadedSession(t, tc, &wordModel{}, nil, "/videos/talk.mp4")
		entered, release := tc.holdExtraction(true)
		defer release()
		job, err := s.Transcribe(context.Background(), nil)
		require.NoError(t, err)
		<-entered

		// Act
		require.NoError(t, s.StopTranscription())
		release()
		err = job.Wait()

		// Assert
		assert.ErrorIs(t, err, transcriber.ErrStopped)
		_, ok := rec.last("transcription_failed").(events.TranscriptionFailed)
		assert.True(t, ok)
		assert.NotContains(t, rec.names(), "transcription_done")
		assert.False(t, s.Transcribing())
	})

	t.Run("should cancel a blocked extraction when a new video is loaded", func(t *testing.T) {
		// Arrange
		tc := &fakeTranscoder{info: media.Info{Duration: 3}, pcm: threeSeconds()}
		s, rec, _ := loadedSession(t, tc, &wordModel{}, nil, "/videos/a.mp4")
		entered, release := tc.holdExtraction(false)
		defer release()
		first, err := s.Transcribe(context.Background(), nil)
		require.NoError(t, err)
		<-entered

		// Act
		require.NoError(t, s.Load(context.Background(), "/videos/b.mp4").Wait())
		second, err := s.Transcribe(context.Background(), nil)

		// Assert
		assert.ErrorIs(t, first.Wait(), transcriber.ErrStopped)
		require.NoError(t, err)
		require.NoError(t, second.Wait())
		done, ok := rec.last("transcription_done").(events.TranscriptionDone)
		require.True(t, ok)
		assert.Len(t, done.Summary.Tokens, 3)
	})

	t.Run("should close without waiting for a blocked extraction", func(t *testing.T) {
		// Arrange
		tc := &fakeTranscoder{info: media.Info{Duration: 3}, pcm: threeSeconds()}
		s, _, _ := loadedSession(t, tc, &wordModel{}, nil, "/videos/talk.mp4")
		entered, release := tc.holdExtraction(false)
		defer release()
		job, err := s.Transcribe(context.Background(), nil)
		require.NoError(t, err)
		<-entered

		// Act
		closed := make(chan error, 1)
		go func() { closed <- s.Close() }()

		// Assert
		select {
		case err := <-closed:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("Close blocked on the extraction")
		}
		assert.ErrorIs(t, job.Wait(), transcriber.ErrStopped)
	})

	t.Run("should fail when audio extraction fails", func(t *testing.T) {
		// Arrange
		tc := &fakeTranscoder{info: media.Info{Duration: 3}, pcm: threeSeconds()}
		s, rec, _ := loadedSession(t, tc, &wordModel{}, nil, "/videos/talk.mp4")
		tc.mu.Lock()
		tc.extractErr = errors.New("no audio stream")
		tc.mu.Unlock()

		// Act
		job, err := s.Transcribe(context.Background(), nil)
		require.NoError(t, err)
		err = job.Wait()

		// Assert
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to extract audio")
		_, ok := rec.last("transcription_failed").(events.TranscriptionFailed)
		assert.True(t, ok)
	})
}

func TestSessionSubtitles(t *testing.T) {
	t.Run("should add, order and save subtitles", func(t *testing.T) {
		// Arrange
		tc := &fakeTranscoder{info: media.Info{Duration: 3}, pcm: threeSeconds()}
		s, rec, fs := loadedSession(t, tc, nil, nil, "/videos/talk.mp4")

		// Act
		require.NoError(t, s.AddSubtitle(2, 3, "second"))
		require.NoError(t, s.AddSubtitle(0, 1, "first"))
		path, err := s.SaveSubtitles()

		// Assert
		require.NoError(t, err)
		assert.Equal(t, subtitle.PathFor("/videos/talk.mp4"), path)
		saved := subtitle.NewStore(fs, nil).Load(path)
		require.Len(t, saved, 2)
		assert.Equal(t, "first", saved[0].Text)
		assert.Contains(t, rec.names(), "subtitles_changed")
		assert.Contains(t, rec.names(), "subtitles_saved")
	})

	t.Run("should reject an invalid subtitle", func(t *testing.T) {
		// Arrange
		tc := &fakeTranscoder{info: media.Info{Duration: 3}, pcm: threeSeconds()}
		s, _, _ := loadedSession(t, tc, nil, nil, "/videos/talk.mp4")

		// Act
		err := s.AddSubtitle(2, 1, "backwards")

		// Assert
		require.Error(t, err)
		assert.Empty(t, s.Subtitles())
	})
}
