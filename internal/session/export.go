package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"videocutter/internal/events"
	"videocutter/internal/export"
)

// Export renders the kept segments to out in the background. The plan is taken from a
// snapshot, so edits made while exporting do not affect the running export.
func (s *Session) Export(ctx context.Context, out string) (*Job, error) {
	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return nil, ErrNoVideoLoaded
	}
	in := s.videoPath
	snap := s.store.Snapshot()
	s.mu.Unlock()

	if !s.exporting.CompareAndSwap(false, true) {
		return nil, ErrExportInProgress
	}

	kept := export.Plan(snap)
	keptDuration := export.KeptDuration(kept)

	s.logger.Info("export requested",
		zap.String("output", out),
		zap.Int("segments", len(kept)),
		zap.Float64("kept_seconds", keptDuration))

	return s.startJob("export", func() error {
		defer s.exporting.Store(false)
		began := time.Now()

		err := s.transcoder.ExportWithCuts(ctx, in, out, kept, func(percent float64) {
			s.bus.Publish(events.ExportProgress{Percent: percent})
		})
		if err != nil {
			s.logger.Error("export failed", zap.String("output", out), zap.Error(err))
			s.bus.Publish(events.ExportFailed{Output: out, Err: err})
			return err
		}

		s.bus.Publish(events.ExportFinished{
			Output:   out,
			Kept:     kept,
			Duration: keptDuration,
			Elapsed:  time.Since(began),
		})
		return nil
	}), nil
}

// Exporting reports whether an export is running
func (s *Session) Exporting() bool {
	return s.exporting.Load()
}
