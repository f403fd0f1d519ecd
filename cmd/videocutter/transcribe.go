package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"videocutter/internal/config"
	"videocutter/internal/events"
	"videocutter/internal/gpu"
	"videocutter/internal/session"
	"videocutter/internal/transcriber"
)

// engineFactory builds pool engines over the remote whisper server when one is configured,
// otherwise over the local whisper.cpp CLI. The local model is downloaded on first use.
func (a *app) engineFactory(ctx context.Context) (session.EngineFactory, bool, error) {
	if a.newEngine != nil {
		return a.newEngine, false, nil
	}
	useGPU, err := gpu.NewDetector(a.logger).Resolve(ctx, a.cfg.GetWhisperUseGPU())
	if err != nil {
		return nil, false, err
	}

	poolOpts := transcriber.PoolEngineOptions{
		Workers:      a.cfg.GetTranscriptionWorkers(),
		EmitPartials: a.cfg.GetTranscriptionEmitPartials(),
	}
	sampleRate := a.cfg.GetSampleRate()

	if url := a.cfg.GetWhisperServerURL(); url != "" {
		a.logger.Info("using remote whisper server", zap.String("url", url))
		return func() (transcriber.Engine, error) {
			return transcriber.NewPoolEngine(transcriber.NewHTTPModel(url, sampleRate, a.logger), poolOpts, a.logger), nil
		}, useGPU, nil
	}

	name := a.cfg.GetWhisperModelName()
	if name == "" {
		name = config.DefaultWhisperModel
	}
	modelPath := a.cfg.GetWhisperModelPath()
	binary := a.cfg.GetWhisperBinary()
	downloader := transcriber.NewModelDownloader(a.logger, a.cfg.GetWhisperModelsDir())

	var (
		once        sync.Once
		downloadErr error
	)
	return func() (transcriber.Engine, error) {
		once.Do(func() {
			downloadErr = downloader.EnsureModelExists(ctx, name, modelPath)
		})
		if downloadErr != nil {
			return nil, fmt.Errorf("failed to prepare whisper model: %w", downloadErr)
		}
		return transcriber.NewPoolEngine(transcriber.NewWhisperCLIModel(binary, sampleRate, a.logger), poolOpts, a.logger), nil
	}, useGPU, nil
}

func newTranscribeCmd(a *app) *cobra.Command {
	var (
		window        string
		saveSubtitles bool
	)
	cmd := &cobra.Command{
		Use:   "transcribe <video>",
		Short: "Transcribe a video's speech as JSON lines",
		Long: `Transcribe the audio of a video in fixed-size chunks. Tokens, progress, chunk
failures and the final summary are written to stdout as JSON lines.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var win *transcriber.Window
			if window != "" {
				r, err := parseRange(window)
				if err != nil {
					return err
				}
				win = &transcriber.Window{Start: r.Start, End: r.End}
			}

			out := transcriber.NewJSONOutput(cmd.OutOrStdout(), a.logger)
			var done *events.TranscriptionDone

			bus := events.NewBus(a.logger)
			bus.Subscribe(func(e events.Event) {
				var err error
				switch ev := e.(type) {
				case events.TranscriptTokens:
					err = out.OutputUpdate(transcriber.Update{
						Kind: transcriber.UpdateTokens, ChunkIndex: ev.Chunk, Tokens: ev.Tokens, Partial: ev.Partial,
					})
				case events.TranscriptionProgress:
					err = out.OutputUpdate(transcriber.Update{Kind: transcriber.UpdateProgress, Progress: ev.Percent})
				case events.ChunkFailed:
					err = out.OutputUpdate(transcriber.Update{Kind: transcriber.UpdateChunkFailed, ChunkIndex: ev.Chunk, Err: ev.Err})
				case events.TranscriptionDone:
					done = &ev
					err = out.OutputSummary(ev.Summary)
				}
				if err != nil {
					a.logger.Warn("failed to write transcription output", zap.Error(err))
				}
			})

			s, err := a.newSession(cmd.Context(), bus, true)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := waitJob(cmd.Context(), s.Load(cmd.Context(), args[0])); err != nil {
				return err
			}

			job, err := s.Transcribe(cmd.Context(), win)
			if err != nil {
				return err
			}
			if err := waitJob(cmd.Context(), job); err != nil {
				return err
			}

			if a.cfg.GetDebugMode() {
				printf(cmd.ErrOrStderr(), "%s\n", a.monitor.GetSummary())
			}

			if saveSubtitles && done != nil {
				if err := s.AddSubtitles(done.Subtitles); err != nil {
					return err
				}
				path, err := s.SaveSubtitles()
				if err != nil {
					return err
				}
				a.logger.Info("subtitles saved", zap.String("path", path), zap.Int("count", len(done.Subtitles)))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&window, "window", "", "only transcribe start:end seconds")
	cmd.Flags().BoolVar(&saveSubtitles, "save-subtitles", false, "append the transcript to the subtitle side-file")
	return cmd
}
