package session

import (
	"fmt"
	"sort"

	"videocutter/internal/events"
	"videocutter/internal/subtitle"
)

// Subtitles returns the subtitle entries of the loaded video
func (s *Session) Subtitles() []subtitle.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]subtitle.Entry, len(s.subs))
	copy(out, s.subs)
	return out
}

// AddSubtitle appends one entry, keeping entries ordered by start time
func (s *Session) AddSubtitle(start, end float64, text string) error {
	entry := subtitle.Entry{Start: start, End: end, Text: text}
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid subtitle: %w", err)
	}
	return s.AddSubtitles([]subtitle.Entry{entry})
}

// AddSubtitles appends entries, for example those built from a transcript
func (s *Session) AddSubtitles(entries []subtitle.Entry) error {
	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return ErrNoVideoLoaded
	}
	s.subs = append(s.subs, entries...)
	sort.SliceStable(s.subs, func(i, j int) bool { return s.subs[i].Start < s.subs[j].Start })
	count := len(s.subs)
	s.mu.Unlock()

	s.bus.Publish(events.SubtitlesChanged{Count: count})
	return nil
}

// SaveSubtitles rewrites the side-file next to the loaded video
func (s *Session) SaveSubtitles() (string, error) {
	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return "", ErrNoVideoLoaded
	}
	path := subtitle.PathFor(s.videoPath)
	entries := make([]subtitle.Entry, len(s.subs))
	copy(entries, s.subs)
	s.mu.Unlock()

	if err := s.subtitles.Save(path, entries); err != nil {
		return "", err
	}
	s.bus.Publish(events.SubtitlesSaved{Path: path, Count: len(entries)})
	return path, nil
}
