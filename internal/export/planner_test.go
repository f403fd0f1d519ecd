package export

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"videocutter/internal/segments"
)

func TestComputeKeptSegments(t *testing.T) {
	t.Run("should merge overlapping deletions before complementing", func(t *testing.T) {
		// Arrange
		deleted := []segments.Range{{Start: 10, End: 20}, {Start: 15, End: 25}, {Start: 60, End: 70}}

		// Act
		kept := ComputeKeptSegments(deleted, 100)

		// Assert
		assert.Equal(t, []segments.Range{
			{Start: 0, End: 10},
			{Start: 25, End: 60},
			{Start: 70, End: 100},
		}, kept)
	})

	t.Run("should keep the whole timeline when nothing is deleted", func(t *testing.T) {
		kept := ComputeKeptSegments(nil, 50)

		assert.Equal(t, []segments.Range{{Start: 0, End: 50}}, kept)
	})

	t.Run("should merge touching deletions", func(t *testing.T) {
		deleted := []segments.Range{{Start: 20, End: 30}, {Start: 10, End: 20}}

		kept := ComputeKeptSegments(deleted, 40)

		assert.Equal(t, []segments.Range{{Start: 0, End: 10}, {Start: 30, End: 40}}, kept)
	})

	t.Run("should omit empty ranges at the timeline boundaries", func(t *testing.T) {
		deleted := []segments.Range{{Start: 0, End: 5}, {Start: 90, End: 100}}

		kept := ComputeKeptSegments(deleted, 100)

		assert.Equal(t, []segments.Range{{Start: 5, End: 90}}, kept)
	})

	t.Run("should return nothing when everything is deleted", func(t *testing.T) {
		deleted := []segments.Range{{Start: 0, End: 60}, {Start: 40, End: 100}}

		kept := ComputeKeptSegments(deleted, 100)

		assert.Empty(t, kept)
	})

	t.Run("should handle a deletion contained in another", func(t *testing.T) {
		deleted := []segments.Range{{Start: 10, End: 50}, {Start: 20, End: 30}}

		kept := ComputeKeptSegments(deleted, 60)

		assert.Equal(t, []segments.Range{{Start: 0, End: 10}, {Start: 50, End: 60}}, kept)
	})

	t.Run("should clip deletions beyond a shrunk duration", func(t *testing.T) {
		deleted := []segments.Range{{Start: 10, End: 20}, {Start: 80, End: 90}}

		kept := ComputeKeptSegments(deleted, 50)

		assert.Equal(t, []segments.Range{{Start: 0, End: 10}, {Start: 20, End: 50}}, kept)
	})

	t.Run("should return nothing for an empty timeline", func(t *testing.T) {
		assert.Empty(t, ComputeKeptSegments(nil, 0))
	})

	t.Run("should always emit ordered positive ranges", func(t *testing.T) {
		deleted := []segments.Range{
			{Start: 70, End: 75}, {Start: 3, End: 9}, {Start: 8, End: 12},
			{Start: 40, End: 41}, {Start: 12, End: 13}, {Start: 74, End: 99},
		}

		kept := ComputeKeptSegments(deleted, 100)

		prevEnd := 0.0
		for _, r := range kept {
			assert.Greater(t, r.End, r.Start)
			assert.GreaterOrEqual(t, r.Start, prevEnd)
			prevEnd = r.End
		}
		assert.Equal(t, []segments.Range{
			{Start: 0, End: 3}, {Start: 13, End: 40}, {Start: 41, End: 70}, {Start: 99, End: 100},
		}, kept)
	})
}

func TestMergeDeleted(t *testing.T) {
	merged := MergeDeleted([]segments.Range{{Start: 15, End: 25}, {Start: 10, End: 20}, {Start: 60, End: 70}}, 100)

	assert.Equal(t, []segments.Range{{Start: 10, End: 25}, {Start: 60, End: 70}}, merged)
}

func TestPlan(t *testing.T) {
	store := segments.NewStore(30)
	store.AddMarker(5, segments.Start)
	store.AddMarker(10, segments.End)
	_, err := store.CommitDeletion()
	assert.NoError(t, err)

	snap := store.Snapshot()
	kept := Plan(snap)

	assert.Equal(t, []segments.Range{{Start: 0, End: 5}, {Start: 10, End: 30}}, kept)
	assert.Equal(t, []segments.Range{{Start: 5, End: 10}}, snap.Deleted)
	assert.InDelta(t, 25.0, KeptDuration(kept), 1e-9)
}
