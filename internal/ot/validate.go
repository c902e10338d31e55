package ot

import "github.com/collabforge/core/internal/apierr"

// Validate checks an Operation against the length of the content it would
// apply to. It mirrors the rules the session manager enforces before ever
// calling Apply: Insert position must not exceed content length and its
// content must be non-empty; Delete must target a non-empty range strictly
// inside the content; Replace must touch at least one non-empty side.
func Validate(op Operation, contentLength int) error {
	switch op.Kind {
	case KindInsert:
		if op.Position < 0 || op.Position > contentLength {
			return &apierr.InvalidOperation{Reason: "insert position exceeds content length"}
		}
		if op.Content == "" {
			return &apierr.InvalidOperation{Reason: "insert content must be non-empty"}
		}
		return nil

	case KindDelete:
		if op.Position < 0 || op.Position >= contentLength {
			return &apierr.InvalidOperation{Reason: "delete position is out of range"}
		}
		if op.Length <= 0 {
			return &apierr.InvalidOperation{Reason: "delete length must be positive"}
		}
		if op.Position+op.Length > contentLength {
			return &apierr.InvalidOperation{Reason: "delete range exceeds content length"}
		}
		return nil

	case KindReplace:
		if op.Position < 0 || op.Position > contentLength {
			return &apierr.InvalidOperation{Reason: "replace position exceeds content length"}
		}
		if op.OldContent == "" && op.NewContent == "" {
			return &apierr.InvalidOperation{Reason: "replace must touch at least one non-empty side"}
		}
		return nil

	default:
		return &apierr.InvalidOperation{Reason: "unknown operation kind"}
	}
}
