package events

import (
	"time"

	"videocutter/internal/segments"
	"videocutter/internal/subtitle"
	"videocutter/internal/transcriber"
)

// MarkerAdded is published after a marker is placed or replaced
type MarkerAdded struct{ Marker segments.Marker }

// MarkerRemoved is published after the most recent marker is removed
type MarkerRemoved struct{ Marker segments.Marker }

// SelectionChanged carries the current selection; Valid is false when there is none
type SelectionChanged struct {
	Selection segments.Range
	Valid     bool
}

// SegmentDeleted is published after the selection is committed as deleted
type SegmentDeleted struct{ Range segments.Range }

// DeletionUndone is published after the newest deleted range is restored
type DeletionUndone struct{ Range segments.Range }

// DeletionsCleared is published after every deleted range is dropped
type DeletionsCleared struct{}

// LoadProgress reports video loading in percent
type LoadProgress struct {
	Percent float64
	Stage   string
}

// VideoLoaded is published once a video and its side data are ready
type VideoLoaded struct {
	Path      string
	Duration  float64
	FPS       float64
	Points    int
	Subtitles int
}

// LoadFailed is published when loading stops with an error
type LoadFailed struct {
	Path string
	Err  error
}

// ExportProgress reports export in percent
type ExportProgress struct{ Percent float64 }

// ExportFinished is published after the output file is in place
type ExportFinished struct {
	Output   string
	Kept     []segments.Range
	Duration float64
	Elapsed  time.Duration
}

// ExportFailed carries the transcoder diagnostic
type ExportFailed struct {
	Output string
	Err    error
}

// TranscriptTokens carries one batch of absolute-time tokens
type TranscriptTokens struct {
	Chunk   int
	Tokens  []transcriber.Token
	Partial bool
}

// TranscriptionProgress reports retired chunks in percent
type TranscriptionProgress struct{ Percent float64 }

// ChunkFailed reports a chunk that errored or timed out
type ChunkFailed struct {
	Chunk int
	Err   error
}

// TranscriptionDone is published exactly once per completed run
type TranscriptionDone struct {
	Summary   transcriber.Summary
	Cached    bool
	Subtitles []subtitle.Entry
}

// TranscriptionFailed is published when a run cannot start or is stopped early
type TranscriptionFailed struct{ Err error }

// SubtitlesChanged is published after subtitles are added or replaced
type SubtitlesChanged struct{ Count int }

// SubtitlesSaved is published after the side-file is written
type SubtitlesSaved struct {
	Path  string
	Count int
}

// PositionChanged mirrors the playback position
type PositionChanged struct{ Seconds float64 }

// DurationChanged mirrors the playback duration
type DurationChanged struct{ Seconds float64 }

func (MarkerAdded) Name() string           { return "marker_added" }
func (MarkerRemoved) Name() string         { return "marker_removed" }
func (SelectionChanged) Name() string      { return "selection_changed" }
func (SegmentDeleted) Name() string        { return "segment_deleted" }
func (DeletionUndone) Name() string        { return "deletion_undone" }
func (DeletionsCleared) Name() string      { return "deletions_cleared" }
func (LoadProgress) Name() string          { return "load_progress" }
func (VideoLoaded) Name() string           { return "video_loaded" }
func (LoadFailed) Name() string            { return "load_failed" }
func (ExportProgress) Name() string        { return "export_progress" }
func (ExportFinished) Name() string        { return "export_finished" }
func (ExportFailed) Name() string          { return "export_failed" }
func (TranscriptTokens) Name() string      { return "transcript_tokens" }
func (TranscriptionProgress) Name() string { return "transcription_progress" }
func (ChunkFailed) Name() string           { return "chunk_failed" }
func (TranscriptionDone) Name() string     { return "transcription_done" }
func (TranscriptionFailed) Name() string   { return "transcription_failed" }
func (SubtitlesChanged) Name() string      { return "subtitles_changed" }
func (SubtitlesSaved) Name() string        { return "subtitles_saved" }
func (PositionChanged) Name() string       { return "position_changed" }
func (DurationChanged) Name() string       { return "duration_changed" }
