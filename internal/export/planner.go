package export

import (
	"sort"

	"videocutter/internal/segments"
)

// MergeDeleted sorts deleted ranges by start and merges overlapping or touching ones.
// Ranges are first clipped to [0, duration]; ranges left empty by clipping are dropped.
func MergeDeleted(deleted []segments.Range, duration float64) []segments.Range {
	clipped := make([]segments.Range, 0, len(deleted))
	for _, r := range deleted {
		if r.Start < 0 {
			r.Start = 0
		}
		if r.End > duration {
			r.End = duration
		}
		if r.End > r.Start {
			clipped = append(clipped, r)
		}
	}

	sort.SliceStable(clipped, func(i, j int) bool {
		return clipped[i].Start < clipped[j].Start
	})

	var merged []segments.Range
	for _, r := range clipped {
		if n := len(merged); n > 0 && r.Start <= merged[n-1].End {
			if r.End > merged[n-1].End {
				merged[n-1].End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}

	return merged
}

// ComputeKeptSegments returns the ranges of [0, duration] not covered by any deleted
// range, ascending and non-overlapping, each with End > Start. With no deletions the
// whole timeline is kept.
func ComputeKeptSegments(deleted []segments.Range, duration float64) []segments.Range {
	if duration <= 0 {
		return nil
	}

	if len(deleted) == 0 {
		return []segments.Range{{Start: 0, End: duration}}
	}

	var kept []segments.Range
	cursor := 0.0
	for _, r := range MergeDeleted(deleted, duration) {
		if r.Start > cursor {
			kept = append(kept, segments.Range{Start: cursor, End: r.Start})
		}
		cursor = r.End
	}

	if cursor < duration {
		kept = append(kept, segments.Range{Start: cursor, End: duration})
	}

	return kept
}

// Plan computes the kept ranges for a store snapshot without modifying it
func Plan(snap segments.Snapshot) []segments.Range {
	return ComputeKeptSegments(snap.Deleted, snap.Duration)
}

// KeptDuration returns the total length of the given ranges in seconds
func KeptDuration(kept []segments.Range) float64 {
	total := 0.0
	for _, r := range kept {
		total += r.Length()
	}
	return total
}
