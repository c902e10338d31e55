package ot

// Apply materialises op's mutation against content, returning the resulting
// content. Positions exceeding the content's rune length saturate to that
// length rather than erroring; callers should Validate first if they want
// hard failures.
func Apply(content string, op Operation) string {
	runes := []rune(content)

	switch op.Kind {
	case KindInsert:
		pos := clamp(op.Position, 0, len(runes))
		out := make([]rune, 0, len(runes)+runeLen(op.Content))
		out = append(out, runes[:pos]...)
		out = append(out, []rune(op.Content)...)
		out = append(out, runes[pos:]...)
		return string(out)

	case KindDelete:
		pos := clamp(op.Position, 0, len(runes))
		end := clamp(pos+op.Length, pos, len(runes))
		if pos >= end {
			return content
		}
		out := make([]rune, 0, len(runes)-(end-pos))
		out = append(out, runes[:pos]...)
		out = append(out, runes[end:]...)
		return string(out)

	case KindReplace:
		pos := clamp(op.Position, 0, len(runes))
		end := clamp(pos+runeLen(op.OldContent), pos, len(runes))
		out := make([]rune, 0, len(runes)-(end-pos)+runeLen(op.NewContent))
		out = append(out, runes[:pos]...)
		out = append(out, []rune(op.NewContent)...)
		out = append(out, runes[end:]...)
		return string(out)

	default:
		return content
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
