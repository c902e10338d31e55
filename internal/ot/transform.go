package ot

import (
	"sort"
	"time"

	"github.com/collabforge/core/internal/apierr"
	"github.com/collabforge/core/internal/metrics"
)

// TransformAgainst returns a adjusted so that applying the result after b has
// the same user-visible effect a would have had on the pre-b document (IT1).
//
// Replace is decomposed into a Delete leg and an Insert leg at the same
// position, and each leg is transformed independently; this composes more
// cleanly with the session manager's single-op submit path than leaving
// Replace unchanged. Overlapping Replace vs Replace has no well-defined
// convergent merge and is reported as apierr.Conflict rather than silently
// resolved.
func TransformAgainst(a, b Operation) (Operation, error) {
	if a.Kind == KindReplace && b.Kind == KindReplace {
		aEnd := a.Position + runeLen(a.OldContent)
		bEnd := b.Position + runeLen(b.OldContent)
		if rangesOverlap(a.Position, aEnd, b.Position, bEnd) {
			return Operation{}, &apierr.Conflict{Reason: "overlapping Replace vs Replace"}
		}
	}

	if b.Kind == KindReplace {
		bDel := Operation{Kind: KindDelete, Position: b.Position, Length: runeLen(b.OldContent)}
		bIns := Operation{Kind: KindInsert, Position: b.Position, Content: b.NewContent}
		out, err := TransformAgainst(a, bDel)
		if err != nil {
			return Operation{}, err
		}
		return TransformAgainst(out, bIns)
	}

	switch a.Kind {
	case KindInsert:
		return transformInsert(a, b), nil
	case KindDelete:
		return transformDelete(a, b), nil
	case KindReplace:
		return transformReplace(a, b)
	default:
		return a, nil
	}
}

// Transform folds TransformAgainst over serverOps in order, sorted by
// (version, timestamp) ascending with id as the final tie-break.
func Transform(op Operation, serverOps []Operation) (Operation, error) {
	start := time.Now()
	defer func() { metrics.Get().TransformDuration.Observe(time.Since(start).Seconds()) }()

	sorted := make([]Operation, len(serverOps))
	copy(sorted, serverOps)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Version != sorted[j].Version {
			return sorted[i].Version < sorted[j].Version
		}
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].ID < sorted[j].ID
	})

	result := op
	for _, b := range sorted {
		var err error
		result, err = TransformAgainst(result, b)
		if err != nil {
			return Operation{}, err
		}
	}
	return result, nil
}

// transformInsert transforms an Insert against a leaf (Insert or Delete) op.
func transformInsert(ins, b Operation) Operation {
	out := ins
	pa := ins.Position

	switch b.Kind {
	case KindInsert:
		switch {
		case b.Position < pa:
			pa += runeLen(b.Content)
		case b.Position > pa:
			// unchanged
		default: // equal position: deterministic tie-break on id
			if ins.ID >= b.ID {
				pa += runeLen(b.Content)
			}
		}

	case KindDelete:
		bEnd := b.Position + b.Length
		switch {
		case bEnd <= pa:
			pa -= b.Length
		case b.Position >= pa:
			// unchanged
		default: // b.Position < pa < bEnd
			pa = b.Position
		}
	}

	out.Position = pa
	return out
}

// transformDelete transforms a Delete against a leaf (Insert or Delete) op.
func transformDelete(del, b Operation) Operation {
	out := del
	pa, la := del.Position, del.Length

	switch b.Kind {
	case KindInsert:
		switch {
		case b.Position < pa:
			pa += runeLen(b.Content)
		case b.Position >= pa+la:
			// unchanged
		default: // insert lands inside the delete range: shrink by one
			la--
			if la < 0 {
				la = 0
			}
		}

	case KindDelete:
		aEnd := pa + la
		bEnd := b.Position + b.Length
		switch {
		case bEnd <= pa:
			pa -= b.Length
		case b.Position >= aEnd:
			// unchanged
		default:
			shiftBefore := 0
			if b.Position < pa {
				shiftBefore = min(b.Length, pa-b.Position)
			}
			overlapStart := max(pa, b.Position)
			overlapEnd := min(aEnd, bEnd)
			overlapLen := overlapEnd - overlapStart
			if overlapLen < 0 {
				overlapLen = 0
			}
			pa -= shiftBefore
			la -= overlapLen
			if la < 0 {
				la = 0
			}
		}
	}

	out.Position = pa
	out.Length = la
	return out
}

// transformReplace decomposes a into Delete+Insert legs, transforms each
// against the leaf op b, and recomposes. If the legs disagree on the
// resulting position, the replace cannot be expressed as a single coherent
// mutation any more and is reported as a Conflict.
func transformReplace(a, b Operation) (Operation, error) {
	legDel := Operation{Kind: KindDelete, Position: a.Position, Length: runeLen(a.OldContent)}
	legIns := Operation{Kind: KindInsert, Position: a.Position, Content: a.NewContent}

	newDel := transformDelete(legDel, b)
	newIns := transformInsert(legIns, b)

	if newDel.Position != newIns.Position {
		return Operation{}, &apierr.Conflict{Reason: "replace legs diverged under transform"}
	}

	out := a
	out.Position = newDel.Position
	return out, nil
}

func rangesOverlap(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && bStart < aEnd
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
