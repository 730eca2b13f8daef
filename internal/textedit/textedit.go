// Package textedit applies targeted byte-range replacements to a document
// without re-rendering it, so every byte outside the edited spans survives
// verbatim.
package textedit

import (
	"errors"
	"fmt"
	"sort"
)

// Span is a targeted byte-range replacement.
//
// Start and End are byte offsets into the original source, End exclusive.
// Replacement substitutes source[Start:End].
type Span struct {
	Start       int
	End         int
	Replacement []byte
}

// Apply applies a set of byte-range edits to source and returns the result.
//
// Spans must be non-overlapping and refer to offsets in the original source.
// They are applied from the end of the document toward the beginning so an
// earlier edit never invalidates the offsets of a later one.
func Apply(source []byte, spans []Span) ([]byte, error) {
	if len(spans) == 0 {
		return source, nil
	}

	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start == sorted[j].Start {
			return sorted[i].End > sorted[j].End
		}
		return sorted[i].Start > sorted[j].Start
	})

	if err := validate(sorted, len(source)); err != nil {
		return nil, err
	}

	out := append([]byte(nil), source...)
	for _, sp := range sorted {
		next := make([]byte, 0, len(out)-(sp.End-sp.Start)+len(sp.Replacement))
		next = append(next, out[:sp.Start]...)
		next = append(next, sp.Replacement...)
		next = append(next, out[sp.End:]...)
		out = next
	}
	return out, nil
}

// validate expects spans sorted by Start descending.
func validate(sorted []Span, sourceLen int) error {
	for i, sp := range sorted {
		switch {
		case sp.Start < 0 || sp.End < 0:
			return fmt.Errorf("invalid span[%d]: negative range", i)
		case sp.End < sp.Start:
			return fmt.Errorf("invalid span[%d]: end before start", i)
		case sp.End > sourceLen:
			return fmt.Errorf("invalid span[%d]: range out of bounds", i)
		}
		// The current span must end at or before the previous span's start.
		if i > 0 && sp.End > sorted[i-1].Start {
			return errors.New("invalid spans: overlapping ranges")
		}
	}
	return nil
}
