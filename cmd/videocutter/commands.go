package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"videocutter/internal/events"
	"videocutter/internal/export"
	"videocutter/internal/gpu"
	"videocutter/internal/segments"
	"videocutter/internal/session"
	"videocutter/internal/subtitle"
	"videocutter/internal/transcriber"
)

// parseRange reads "start:end" in seconds
func parseRange(s string) (segments.Range, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return segments.Range{}, fmt.Errorf("range %q must look like start:end", s)
	}
	start, err := cast.ToFloat64E(strings.TrimSpace(parts[0]))
	if err != nil {
		return segments.Range{}, fmt.Errorf("invalid range start %q: %w", parts[0], err)
	}
	end, err := cast.ToFloat64E(strings.TrimSpace(parts[1]))
	if err != nil {
		return segments.Range{}, fmt.Errorf("invalid range end %q: %w", parts[1], err)
	}
	return segments.Range{Start: start, End: end}, nil
}

func parseRanges(values []string) ([]segments.Range, error) {
	out := make([]segments.Range, 0, len(values))
	for _, v := range values {
		r, err := parseRange(v)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write JSON: %w", err)
	}
	return nil
}

type planOutput struct {
	Duration    float64          `json:"duration"`
	Deleted     []segments.Range `json:"deleted"`
	Kept        []segments.Range `json:"kept"`
	KeptSeconds float64          `json:"kept_seconds"`
}

func newPlanCmd(a *app) *cobra.Command {
	var (
		duration float64
		deletes  []string
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the ranges an export would keep",
		Long:  "Merge the deleted ranges and print the complementary kept ranges of a timeline.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deleted, err := parseRanges(deletes)
			if err != nil {
				return err
			}
			kept := export.ComputeKeptSegments(deleted, duration)
			if kept == nil {
				kept = []segments.Range{}
			}
			return writeJSON(cmd, planOutput{
				Duration:    duration,
				Deleted:     export.MergeDeleted(deleted, duration),
				Kept:        kept,
				KeptSeconds: export.KeptDuration(kept),
			})
		},
	}
	cmd.Flags().Float64Var(&duration, "duration", 0, "timeline length in seconds")
	cmd.Flags().StringArrayVar(&deletes, "delete", nil, "deleted range start:end, repeatable")
	_ = cmd.MarkFlagRequired("duration")
	return cmd
}

func newWaveformCmd(a *app) *cobra.Command {
	var points int
	cmd := &cobra.Command{
		Use:   "waveform <video>",
		Short: "Print the display waveform of a video's audio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if points > 0 {
				a.cfg.Set("waveform.points", points)
			}
			s, err := a.newSession(cmd.Context(), nil, false)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := waitJob(cmd.Context(), s.Load(cmd.Context(), args[0])); err != nil {
				return err
			}
			return writeJSON(cmd, s.Waveform())
		},
	}
	cmd.Flags().IntVar(&points, "points", 0, "number of display samples (default from config)")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var deletes []string
	cmd := &cobra.Command{
		Use:   "export <input> <output>",
		Short: "Write the input without the deleted ranges",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			deleted, err := parseRanges(deletes)
			if err != nil {
				return err
			}

			bus := events.NewBus(a.logger)
			bus.Subscribe(func(e events.Event) {
				switch ev := e.(type) {
				case events.ExportProgress:
					printf(cmd.ErrOrStderr(), "\rexport %5.1f%%", ev.Percent)
				case events.ExportFinished:
					printf(cmd.ErrOrStderr(), "\n")
					printf(cmd.OutOrStdout(), "exported %s: %d segments, %.3fs kept in %s\n",
						ev.Output, len(ev.Kept), ev.Duration, ev.Elapsed.Round(time.Millisecond))
				}
			})

			s, err := a.newSession(cmd.Context(), bus, false)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := waitJob(cmd.Context(), s.Load(cmd.Context(), args[0])); err != nil {
				return err
			}
			if err := applyDeletions(s, deleted); err != nil {
				return err
			}

			job, err := s.Export(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			return waitJob(cmd.Context(), job)
		},
	}
	cmd.Flags().StringArrayVar(&deletes, "delete", nil, "deleted range start:end, repeatable")
	return cmd
}

// applyDeletions replays each range as a marker pair plus commit
func applyDeletions(s *session.Session, deleted []segments.Range) error {
	for _, r := range deleted {
		if _, err := s.AddMarker(r.Start, segments.Start); err != nil {
			return err
		}
		if _, err := s.AddMarker(r.End, segments.End); err != nil {
			return err
		}
		if _, err := s.CommitDeletion(); err != nil {
			return fmt.Errorf("failed to delete %s: %w", r, err)
		}
	}
	return nil
}

func newSubtitlesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subtitles",
		Short: "Inspect and edit subtitle side-files",
	}

	list := &cobra.Command{
		Use:   "list <video>",
		Short: "Print the subtitles stored next to a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := subtitle.NewStore(a.fs, a.logger).Load(subtitle.PathFor(args[0]))
			return writeJSON(cmd, entries)
		},
	}

	add := &cobra.Command{
		Use:   "add <video> <start> <end> <text>",
		Short: "Append one subtitle to a video's side-file",
		Args:  cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := cast.ToFloat64E(args[1])
			if err != nil {
				return fmt.Errorf("invalid start %q: %w", args[1], err)
			}
			end, err := cast.ToFloat64E(args[2])
			if err != nil {
				return fmt.Errorf("invalid end %q: %w", args[2], err)
			}
			entry := subtitle.Entry{Start: start, End: end, Text: strings.Join(args[3:], " ")}
			if err := entry.Validate(); err != nil {
				return fmt.Errorf("invalid subtitle: %w", err)
			}

			store := subtitle.NewStore(a.fs, a.logger)
			path := subtitle.PathFor(args[0])
			entries := append(store.Load(path), entry)
			if err := store.Save(path, entries); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s: %d subtitles\n", path, len(entries))
			return nil
		},
	}

	cmd.AddCommand(list, add)
	return cmd
}

func newModelsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List and download whisper models",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Print the downloadable model names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := transcriber.NewModelDownloader(a.logger, a.cfg.GetWhisperModelsDir())
			for _, name := range d.GetAvailableModels() {
				printf(cmd.OutOrStdout(), "%-16s %s\n", name, d.GetModelSize(name))
			}
			return nil
		},
	}

	download := &cobra.Command{
		Use:   "download <name>",
		Short: "Download a model into the models directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := transcriber.NewModelDownloader(a.logger, a.cfg.GetWhisperModelsDir())
			path := d.GetModelPath(args[0])
			if err := d.EnsureModelExists(cmd.Context(), args[0], path); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s\n", path)
			return nil
		},
	}

	cmd.AddCommand(list, download)
	return cmd
}

func newGPUCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "gpu",
		Short: "Report GPU availability for whisper.cpp",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			detector := gpu.NewDetector(a.logger)
			info := detector.Detect(cmd.Context())
			useGPU, err := detector.Resolve(cmd.Context(), a.cfg.GetWhisperUseGPU())
			if err != nil {
				a.logger.Warn("invalid GPU setting", zap.Error(err))
			}
			return writeJSON(cmd, struct {
				gpu.Info
				Setting string `json:"setting"`
				UseGPU  bool   `json:"use_gpu"`
			}{info, a.cfg.GetWhisperUseGPU(), useGPU})
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})
	return cmd
}
