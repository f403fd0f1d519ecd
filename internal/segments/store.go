package segments

import (
	"errors"
	"math"
)

// ErrNothingToDelete is returned by CommitDeletion when there is no valid selection
var ErrNothingToDelete = errors.New("nothing to delete: no valid selection")

// DefaultNearbyThreshold is the hit-test distance, in seconds, used to find a marker near a position
const DefaultNearbyThreshold = 0.5

// MarkerKind identifies which end of a selection a marker defines
type MarkerKind int

const (
	// Start marks the beginning of a selection
	Start MarkerKind = iota
	// End marks the end of a selection
	End
)

func (k MarkerKind) String() string {
	if k == Start {
		return "start"
	}
	return "end"
}

// Marker is a user-placed point on the timeline
type Marker struct {
	Position float64    `json:"position"`
	Kind     MarkerKind `json:"kind"`
}

// Snapshot is an immutable copy of the state needed to plan an export
type Snapshot struct {
	Duration float64
	Deleted  []Range
}

// Store tracks markers, the current selection and committed deletions over a timeline
// of known duration. It is not safe for concurrent use; callers serialise access.
type Store struct {
	duration float64
	markers  []Marker
	deleted  []Range
}

// NewStore creates a Store for a timeline of the given duration
func NewStore(duration float64) *Store {
	s := &Store{}
	s.SetDuration(duration)
	return s
}

// Duration returns the timeline length in seconds
func (s *Store) Duration() float64 {
	return s.duration
}

// SetDuration sets the timeline length. Existing markers and deleted ranges are not
// revalidated; callers that shrink the duration are responsible for that.
func (s *Store) SetDuration(d float64) {
	if d < 0 || math.IsNaN(d) {
		d = 0
	}
	s.duration = d
}

// Reset replaces the timeline with a fresh one, dropping markers and deletions
func (s *Store) Reset(duration float64) {
	s.markers = nil
	s.deleted = nil
	s.SetDuration(duration)
}

// AddMarker places a marker of the given kind, clamped into [0, duration].
// Any existing marker of the same kind is replaced.
func (s *Store) AddMarker(position float64, kind MarkerKind) Marker {
	m := Marker{Position: clamp(position, 0, s.duration), Kind: kind}

	kept := s.markers[:0]
	for _, existing := range s.markers {
		if existing.Kind != kind {
			kept = append(kept, existing)
		}
	}
	s.markers = append(kept, m)

	return m
}

// Markers returns the markers in insertion order
func (s *Store) Markers() []Marker {
	out := make([]Marker, len(s.markers))
	copy(out, s.markers)
	return out
}

// Marker returns the marker of the given kind, if present
func (s *Store) Marker(kind MarkerKind) (Marker, bool) {
	for _, m := range s.markers {
		if m.Kind == kind {
			return m, true
		}
	}
	return Marker{}, false
}

// CurrentSelection returns the span between the Start and End markers.
// A selection exists only when both markers are set and start < end.
func (s *Store) CurrentSelection() (Range, bool) {
	start, okStart := s.Marker(Start)
	end, okEnd := s.Marker(End)
	if !okStart || !okEnd {
		return Range{}, false
	}

	if start.Position >= end.Position {
		return Range{}, false
	}

	return Range{Start: start.Position, End: end.Position}, true
}

// RemoveLastMarker removes the most recently added marker. Removing a Start marker
// also drops a remaining End marker; removing an End marker keeps the Start.
func (s *Store) RemoveLastMarker() (Marker, bool) {
	if len(s.markers) == 0 {
		return Marker{}, false
	}

	last := s.markers[len(s.markers)-1]
	s.markers = s.markers[:len(s.markers)-1]

	if last.Kind == Start {
		kept := s.markers[:0]
		for _, m := range s.markers {
			if m.Kind != End {
				kept = append(kept, m)
			}
		}
		s.markers = kept
	}

	return last, true
}

// NearestMarker returns the first marker within threshold seconds of position
func (s *Store) NearestMarker(position, threshold float64) (Marker, bool) {
	for _, m := range s.markers {
		if math.Abs(m.Position-position) < threshold {
			return m, true
		}
	}
	return Marker{}, false
}

// CommitDeletion appends the current selection to the deleted ranges and clears both
// markers. It returns ErrNothingToDelete and leaves the store untouched when there
// is no valid selection.
func (s *Store) CommitDeletion() (Range, error) {
	sel, ok := s.CurrentSelection()
	if !ok {
		return Range{}, ErrNothingToDelete
	}

	s.deleted = append(s.deleted, sel)
	s.markers = nil

	return sel, nil
}

// UndoLastDeletion pops the most recently committed deletion
func (s *Store) UndoLastDeletion() (Range, bool) {
	if len(s.deleted) == 0 {
		return Range{}, false
	}

	last := s.deleted[len(s.deleted)-1]
	s.deleted = s.deleted[:len(s.deleted)-1]
	return last, true
}

// ClearDeletions empties the deleted ranges
func (s *Store) ClearDeletions() {
	s.deleted = nil
}

// DeletedSegments returns the committed deletions in insertion order
func (s *Store) DeletedSegments() []Range {
	out := make([]Range, len(s.deleted))
	copy(out, s.deleted)
	return out
}

// Snapshot returns a copy of the duration and deleted ranges
func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		Duration: s.duration,
		Deleted:  s.DeletedSegments(),
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
