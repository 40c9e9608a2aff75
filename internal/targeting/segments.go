// Package targeting turns a user interest model into the segment lists the
// candidate source is queried with.
package targeting

import (
	"sort"
	"strings"

	"github.com/ignite/adserving/internal/domain"
)

// DefaultMaxSegmentsPerCategory is how many segments each model list contributes.
const DefaultMaxSegmentsPerCategory = 3

// GetTopSegments takes the highest scoring maxPerCategory entries of each
// model list (intent, then latent interest, then interest) and concatenates
// them. With parentOnly, child segments collapse to their parent. Duplicates
// keep their first position. An empty model yields an empty list.
func GetTopSegments(model domain.UserModel, maxPerCategory int, parentOnly bool) []string {
	if maxPerCategory <= 0 {
		maxPerCategory = DefaultMaxSegmentsPerCategory
	}

	var out []string
	seen := make(map[string]bool)
	for _, list := range [][]domain.SegmentScore{model.Intent, model.LatentInterest, model.Interest} {
		for _, s := range topN(list, maxPerCategory) {
			seg := strings.TrimSpace(s.Segment)
			if seg == "" {
				continue
			}
			if parentOnly {
				seg = ParentSegment(seg)
			}
			if seen[seg] {
				continue
			}
			seen[seg] = true
			out = append(out, seg)
		}
	}
	return out
}

// topN returns up to n entries ordered by descending score; ties keep input order.
func topN(list []domain.SegmentScore, n int) []domain.SegmentScore {
	sorted := make([]domain.SegmentScore, len(list))
	copy(sorted, list)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// ParentSegment returns the part of segment before the first separator.
func ParentSegment(segment string) string {
	parent, _, _ := strings.Cut(segment, domain.SegmentSeparator)
	return parent
}

// Matches reports whether a creative registered under adSegment answers a
// query for segment. A parent query also matches its children.
func Matches(adSegment, segment string) bool {
	if adSegment == segment {
		return true
	}
	return !strings.Contains(segment, domain.SegmentSeparator) && ParentSegment(adSegment) == segment
}
