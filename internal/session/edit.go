package session

import (
	"videocutter/internal/events"
	"videocutter/internal/export"
	"videocutter/internal/segments"
)

// AddMarker places a marker, replacing any marker of the same kind
func (s *Session) AddMarker(position float64, kind segments.MarkerKind) (segments.Marker, error) {
	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return segments.Marker{}, ErrNoVideoLoaded
	}
	marker := s.store.AddMarker(position, kind)
	selection, valid := s.store.CurrentSelection()
	s.mu.Unlock()

	s.bus.Publish(events.MarkerAdded{Marker: marker})
	s.bus.Publish(events.SelectionChanged{Selection: selection, Valid: valid})
	return marker, nil
}

// RemoveLastMarker undoes the most recent marker placement
func (s *Session) RemoveLastMarker() (segments.Marker, bool) {
	s.mu.Lock()
	marker, ok := s.store.RemoveLastMarker()
	selection, valid := s.store.CurrentSelection()
	s.mu.Unlock()

	if ok {
		s.bus.Publish(events.MarkerRemoved{Marker: marker})
		s.bus.Publish(events.SelectionChanged{Selection: selection, Valid: valid})
	}
	return marker, ok
}

// NearestMarker finds a marker within threshold seconds of position
func (s *Session) NearestMarker(position, threshold float64) (segments.Marker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.NearestMarker(position, threshold)
}

// Markers returns the placed markers in insertion order
func (s *Session) Markers() []segments.Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Markers()
}

// Selection returns the current selection
func (s *Session) Selection() (segments.Range, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.CurrentSelection()
}

// CommitDeletion marks the current selection as deleted
func (s *Session) CommitDeletion() (segments.Range, error) {
	s.mu.Lock()
	r, err := s.store.CommitDeletion()
	s.mu.Unlock()
	if err != nil {
		return r, err
	}

	s.logger.Debug("segment deleted")
	s.bus.Publish(events.SegmentDeleted{Range: r})
	s.bus.Publish(events.SelectionChanged{})
	return r, nil
}

// UndoLastDeletion restores the newest deleted range
func (s *Session) UndoLastDeletion() (segments.Range, bool) {
	s.mu.Lock()
	r, ok := s.store.UndoLastDeletion()
	s.mu.Unlock()

	if ok {
		s.bus.Publish(events.DeletionUndone{Range: r})
	}
	return r, ok
}

// ClearDeletions restores every deleted range
func (s *Session) ClearDeletions() {
	s.mu.Lock()
	s.store.ClearDeletions()
	s.mu.Unlock()
	s.bus.Publish(events.DeletionsCleared{})
}

// DeletedSegments returns the deleted ranges in insertion order
func (s *Session) DeletedSegments() []segments.Range {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.DeletedSegments()
}

// Snapshot returns an immutable copy of the timeline state
func (s *Session) Snapshot() segments.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Snapshot()
}

// KeptSegments returns the ranges an export would retain
func (s *Session) KeptSegments() []segments.Range {
	return export.Plan(s.Snapshot())
}
