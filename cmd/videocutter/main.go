package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"videocutter/internal/cache"
	"videocutter/internal/config"
	"videocutter/internal/events"
	"videocutter/internal/logger"
	"videocutter/internal/media"
	"videocutter/internal/performance"
	"videocutter/internal/session"
	"videocutter/internal/subtitle"
	"videocutter/internal/transcriber"
)

const version = "1.0"

// app carries the state shared by every command. Fields left nil are built from
// configuration in the root command's pre-run hook.
type app struct {
	configFile string
	logLevel   string

	cfg        *config.Configuration
	logger     *zap.Logger
	level      zap.AtomicLevel
	fs         afero.Fs
	transcoder session.Transcoder
	newEngine  session.EngineFactory
	monitor    *performance.ChunkMonitor
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(&app{}).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "videocutter",
		Short: "Cut segments out of videos and transcribe their speech",
		Long: `videocutter marks and deletes time ranges of a video, exports the kept ranges
through ffmpeg, and transcribes the audio in fixed-size chunks with whisper.cpp.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.configFile, "config", "", "YAML configuration file (environment variables override it)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newPlanCmd(a),
		newWaveformCmd(a),
		newExportCmd(a),
		newTranscribeCmd(a),
		newSubtitlesCmd(a),
		newModelsCmd(a),
		newGPUCmd(a),
		newEditCmd(a),
		newConfigCmd(a),
	)
	return root
}

// setup loads configuration and builds the logger
func (a *app) setup() error {
	if a.cfg == nil {
		var err error
		if a.configFile != "" {
			a.cfg, err = config.NewConfigurationFromFile(a.configFile)
		} else {
			a.cfg, err = config.NewConfigurationFromEnv()
		}
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
	}
	if a.logLevel != "" {
		a.cfg.Set("log.level", a.logLevel)
	}

	if a.logger == nil {
		l, level, err := logger.NewLeveledLogger(a.cfg.GetLogLevel(), a.cfg.GetLogDevelopment())
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		a.logger = l
		a.level = level

		a.cfg.Watch(a.logger, func(c *config.Configuration) {
			parsed, err := logger.ParseLevel(c.GetLogLevel())
			if err != nil {
				a.logger.Warn("ignoring invalid log level", zap.Error(err))
				return
			}
			a.level.SetLevel(parsed.Level())
		})
	}

	if a.fs == nil {
		a.fs = afero.NewOsFs()
	}
	if a.transcoder == nil {
		a.transcoder = media.NewTranscoder(a.cfg.GetFFmpegPath(), a.cfg.GetFFprobePath(), a.logger)
	}
	return nil
}

// newSession wires a session over the configured transcoder, subtitle store and cache
func (a *app) newSession(ctx context.Context, bus *events.Bus, withEngine bool) (*session.Session, error) {
	opts := session.Options{
		SampleRate:         a.cfg.GetSampleRate(),
		WaveformSampleRate: a.cfg.GetWaveformSampleRate(),
		WaveformPoints:     a.cfg.GetWaveformPoints(),
		Scheduler: transcriber.Options{
			ModelPath:     a.cfg.GetWhisperModelPath(),
			ChunkDuration: a.cfg.GetTranscriptionChunkDuration(),
			ChunkTimeout:  a.cfg.GetTranscriptionChunkTimeout(),
			MaxInFlight:   a.cfg.GetTranscriptionMaxInFlight(),
		},
	}
	if a.monitor == nil {
		a.monitor = performance.NewChunkMonitorWithBenchmark(a.logger, a.cfg.GetDebugMode())
	}
	opts.Monitor = a.monitor

	if withEngine {
		factory, useGPU, err := a.engineFactory(ctx)
		if err != nil {
			return nil, err
		}
		opts.NewEngine = factory
		opts.Scheduler.UseGPU = useGPU
	}

	if a.cfg.GetCacheEnabled() {
		c, err := cache.Open(a.cfg.GetCachePath(), a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open transcript cache: %w", err)
		}
		opts.Cache = c
	}

	return session.New(a.transcoder, subtitle.NewStore(a.fs, a.logger), bus, opts, a.logger), nil
}

// waitJob waits for a session job, giving up when ctx ends
func waitJob(ctx context.Context, job *session.Job) error {
	select {
	case <-job.Done():
		return job.Wait()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func printf(w io.Writer, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(w, format, args...)
}
