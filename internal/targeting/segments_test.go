package targeting

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ignite/adserving/internal/domain"
)

func TestGetTopSegments_OrderAndLimit(t *testing.T) {
	model := domain.UserModel{
		Intent: []domain.SegmentScore{
			{Segment: "travel-hotels", Score: 0.2},
			{Segment: "travel-flights", Score: 0.9},
		},
		LatentInterest: []domain.SegmentScore{
			{Segment: "automotive-suv", Score: 0.5},
		},
		Interest: []domain.SegmentScore{
			{Segment: "sports-tennis", Score: 0.1},
			{Segment: "sports-golf", Score: 0.8},
			{Segment: "food & drink-vegan", Score: 0.8},
			{Segment: "science-physics", Score: 0.7},
		},
	}

	got := GetTopSegments(model, 3, false)

	assert.Equal(t, []string{
		"travel-flights", "travel-hotels",
		"automotive-suv",
		"sports-golf", "food & drink-vegan", "science-physics",
	}, got)
}

func TestGetTopSegments_ParentOnly(t *testing.T) {
	model := domain.UserModel{
		Interest: []domain.SegmentScore{
			{Segment: "sports-golf", Score: 0.9},
			{Segment: "sports-tennis", Score: 0.8},
			{Segment: "technology & computing-software", Score: 0.7},
		},
	}

	got := GetTopSegments(model, 3, true)

	assert.Equal(t, []string{"sports", "technology & computing"}, got)
}

func TestGetTopSegments_EmptyModel(t *testing.T) {
	assert.Empty(t, GetTopSegments(domain.UserModel{}, 3, false))
	assert.Empty(t, GetTopSegments(domain.UserModel{}, 3, true))
}

func TestGetTopSegments_DefaultLimit(t *testing.T) {
	model := domain.UserModel{Intent: []domain.SegmentScore{
		{Segment: "a", Score: 4}, {Segment: "b", Score: 3}, {Segment: "c", Score: 2}, {Segment: "d", Score: 1},
	}}
	assert.Equal(t, []string{"a", "b", "c"}, GetTopSegments(model, 0, false))
}

func TestGetTopSegments_DoesNotMutateInput(t *testing.T) {
	intent := []domain.SegmentScore{{Segment: "low", Score: 0.1}, {Segment: "high", Score: 0.9}}
	GetTopSegments(domain.UserModel{Intent: intent}, 3, false)
	assert.Equal(t, "low", intent[0].Segment)
}

func TestParentSegment(t *testing.T) {
	assert.Equal(t, "technology & computing", ParentSegment("technology & computing-software"))
	assert.Equal(t, "sports", ParentSegment("sports"))
	assert.Equal(t, "a", ParentSegment("a-b-c"))
}

func TestMatches(t *testing.T) {
	assert.True(t, Matches("sports-golf", "sports-golf"))
	assert.True(t, Matches("sports-golf", "sports"))
	assert.True(t, Matches("sports", "sports"))
	assert.False(t, Matches("sports-golf", "sports-tennis"))
	assert.False(t, Matches("sports", "sports-golf"))
	assert.True(t, Matches(domain.UntargetedSegment, domain.UntargetedSegment))
}
