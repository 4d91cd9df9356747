package common

import "sort"

// Coalesce returns the first non-zero value from the provided values, or the zero value if all are zero.
//
// Parameters:
//   - values: a variadic list of values to check for non-zero status
//
// Returns:
//   - T: the first non-zero value from the input, or the zero value if all are zero
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// Span is a half-open [Start, End) range of element indices.
type Span struct {
	Start, End int
}

// Len returns the number of elements covered by the span.
func (s Span) Len() int { return s.End - s.Start }

// MergeSpans sorts spans in place by start and merges any that overlap or touch, so that each
// resulting span can be issued as a single contiguous write. Empty spans are dropped.
//
// Parameters:
//   - spans: the spans to merge, reordered in place
//
// Returns:
//   - []Span: the merged spans, sharing the backing array of the input
func MergeSpans(spans []Span) []Span {
	if len(spans) == 0 {
		return spans
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })

	out := spans[:0]
	for _, s := range spans {
		if s.Len() <= 0 {
			continue
		}
		if n := len(out); n > 0 && s.Start <= out[n-1].End {
			if s.End > out[n-1].End {
				out[n-1].End = s.End
			}
			continue
		}
		out = append(out, s)
	}
	return out
}
