package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"videocutter/internal/events"
	"videocutter/internal/segments"
	"videocutter/internal/session"
	"videocutter/internal/transcriber"
)

var errQuit = errors.New("quit")

// lockedWriter serialises output from the prompt and from background jobs
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) printf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	printf(l.w, format, args...)
}

// editor is the interactive front end over one session
type editor struct {
	session *session.Session
	out     *lockedWriter
	cmd     *cobra.Command
	jobs    []*session.Job
}

type editCommand struct {
	usage string
	run   func(e *editor, args []string) error
}

var editCommands map[string]editCommand

func init() {
	editCommands = map[string]editCommand{
		"load":        {"load <video>", (*editor).load},
		"start":       {"start <seconds>", func(e *editor, args []string) error { return e.mark(args, segments.Start) }},
		"end":         {"end <seconds>", func(e *editor, args []string) error { return e.mark(args, segments.End) }},
		"undo-marker": {"undo-marker", (*editor).undoMarker},
		"delete":      {"delete", (*editor).commit},
		"undo":        {"undo", (*editor).undo},
		"clear":       {"clear", (*editor).clear},
		"status":      {"status", (*editor).status},
		"export":      {"export <output>", (*editor).export},
		"transcribe":  {"transcribe [start:end]", (*editor).transcribe},
		"stop":        {"stop", (*editor).stop},
		"sub":         {"sub <start> <end> <text>", (*editor).addSubtitle},
		"subs":        {"subs", (*editor).listSubtitles},
		"save-subs":   {"save-subs", (*editor).saveSubtitles},
		"wait":        {"wait", (*editor).wait},
		"help":        {"help", (*editor).help},
		"quit":        {"quit", func(*editor, []string) error { return errQuit }},
	}
}

func newEditCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "edit [video]",
		Short: "Interactive editing session reading commands from stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &lockedWriter{w: cmd.OutOrStdout()}
			bus := events.NewBus(a.logger)
			bus.Subscribe(func(e events.Event) { printEvent(out, e) })

			s, err := a.newSession(cmd.Context(), bus, true)
			if err != nil {
				return err
			}

			e := &editor{session: s, out: out, cmd: cmd}
			if len(args) == 1 {
				if err := e.load(args); err != nil {
					return multierr.Append(err, s.Close())
				}
			}

			return multierr.Append(e.loop(cmd.InOrStdin()), s.Close())
		},
	}
}

func (e *editor) loop(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		c, ok := editCommands[fields[0]]
		if !ok {
			e.out.printf("unknown command %q, try help\n", fields[0])
			continue
		}
		if err := c.run(e, fields[1:]); err != nil {
			if errors.Is(err, errQuit) {
				break
			}
			e.out.printf("error: %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read commands: %w", err)
	}
	return e.wait(nil)
}

func (e *editor) track(job *session.Job) {
	e.jobs = append(e.jobs, job)
}

func (e *editor) load(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: load <video>")
	}
	job := e.session.Load(e.cmd.Context(), args[0])
	e.track(job)
	// later commands depend on the loaded duration
	return job.Wait()
}

func (e *editor) mark(args []string, kind segments.MarkerKind) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s <seconds>", kind)
	}
	pos, err := cast.ToFloat64E(args[0])
	if err != nil {
		return fmt.Errorf("invalid position %q: %w", args[0], err)
	}
	_, err = e.session.AddMarker(pos, kind)
	return err
}

func (e *editor) undoMarker([]string) error {
	if _, ok := e.session.RemoveLastMarker(); !ok {
		e.out.printf("no marker to remove\n")
	}
	return nil
}

func (e *editor) commit([]string) error {
	_, err := e.session.CommitDeletion()
	return err
}

func (e *editor) undo([]string) error {
	if _, ok := e.session.UndoLastDeletion(); !ok {
		e.out.printf("nothing to undo\n")
	}
	return nil
}

func (e *editor) clear([]string) error {
	e.session.ClearDeletions()
	return nil
}

func (e *editor) status([]string) error {
	snap := e.session.Snapshot()
	e.out.printf("video: %s (%.3fs)\n", e.session.VideoPath(), snap.Duration)
	for _, m := range e.session.Markers() {
		e.out.printf("marker: %s %.3f\n", m.Kind, m.Position)
	}
	if sel, ok := e.session.Selection(); ok {
		e.out.printf("selection: %s\n", sel)
	}
	for _, r := range snap.Deleted {
		e.out.printf("deleted: %s\n", r)
	}
	for _, r := range e.session.KeptSegments() {
		e.out.printf("kept: %s\n", r)
	}
	return nil
}

func (e *editor) export(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: export <output>")
	}
	job, err := e.session.Export(e.cmd.Context(), args[0])
	if err != nil {
		return err
	}
	e.track(job)
	return nil
}

func (e *editor) transcribe(args []string) error {
	var window *transcriber.Window
	if len(args) == 1 {
		r, err := parseRange(args[0])
		if err != nil {
			return err
		}
		window = &transcriber.Window{Start: r.Start, End: r.End}
	}
	job, err := e.session.Transcribe(e.cmd.Context(), window)
	if err != nil {
		return err
	}
	e.track(job)
	return nil
}

func (e *editor) stop([]string) error {
	return e.session.StopTranscription()
}

func (e *editor) addSubtitle(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: sub <start> <end> <text>")
	}
	start, err := cast.ToFloat64E(args[0])
	if err != nil {
		return fmt.Errorf("invalid start %q: %w", args[0], err)
	}
	end, err := cast.ToFloat64E(args[1])
	if err != nil {
		return fmt.Errorf("invalid end %q: %w", args[1], err)
	}
	return e.session.AddSubtitle(start, end, strings.Join(args[2:], " "))
}

func (e *editor) listSubtitles([]string) error {
	for _, s := range e.session.Subtitles() {
		e.out.printf("%8.3f %8.3f  %s\n", s.Start, s.End, s.Text)
	}
	return nil
}

func (e *editor) saveSubtitles([]string) error {
	_, err := e.session.SaveSubtitles()
	return err
}

// wait blocks until every job started from the prompt has finished
func (e *editor) wait([]string) error {
	for _, job := range e.jobs {
		<-job.Done()
	}
	e.jobs = nil
	return nil
}

func (e *editor) help([]string) error {
	names := make([]string, 0, len(editCommands))
	for name := range editCommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		e.out.printf("  %s\n", editCommands[name].usage)
	}
	return nil
}

func printEvent(out *lockedWriter, e events.Event) {
	switch ev := e.(type) {
	case events.VideoLoaded:
		out.printf("loaded %s: %.3fs, %.2f fps, %d subtitles\n", ev.Path, ev.Duration, ev.FPS, ev.Subtitles)
	case events.LoadFailed:
		out.printf("load failed: %v\n", ev.Err)
	case events.SelectionChanged:
		if ev.Valid {
			out.printf("selection %s\n", ev.Selection)
		}
	case events.SegmentDeleted:
		out.printf("deleted %s\n", ev.Range)
	case events.DeletionUndone:
		out.printf("restored %s\n", ev.Range)
	case events.DeletionsCleared:
		out.printf("deletions cleared\n")
	case events.ExportFinished:
		out.printf("exported %s (%d segments, %.3fs)\n", ev.Output, len(ev.Kept), ev.Duration)
	case events.ExportFailed:
		out.printf("export failed: %v\n", ev.Err)
	case events.ChunkFailed:
		out.printf("chunk %d failed: %v\n", ev.Chunk, ev.Err)
	case events.TranscriptionDone:
		out.printf("transcribed %d tokens into %d subtitles (cached: %t)\n", len(ev.Summary.Tokens), len(ev.Subtitles), ev.Cached)
	case events.TranscriptionFailed:
		out.printf("transcription failed: %v\n", ev.Err)
	case events.SubtitlesSaved:
		out.printf("saved %d subtitles to %s\n", ev.Count, ev.Path)
	}
}
