package ot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	t.Run("insert at position equal to len+1 is rejected", func(t *testing.T) {
		op := NewInsert("a", "u1", 0, 6, "x")
		err := Validate(op, 5)
		require.Error(t, err)
	})

	t.Run("delete at position equal to len is rejected", func(t *testing.T) {
		op := NewDelete("a", "u1", 0, 5, 1)
		err := Validate(op, 5)
		require.Error(t, err)
	})

	t.Run("zero length delete is rejected", func(t *testing.T) {
		op := NewDelete("a", "u1", 0, 2, 0)
		err := Validate(op, 5)
		require.Error(t, err)
	})

	t.Run("empty insert is rejected", func(t *testing.T) {
		op := NewInsert("a", "u1", 0, 2, "")
		err := Validate(op, 5)
		require.Error(t, err)
	})

	t.Run("valid insert passes", func(t *testing.T) {
		op := NewInsert("a", "u1", 0, 5, "x")
		require.NoError(t, Validate(op, 5))
	})

	t.Run("replace with both sides empty is rejected", func(t *testing.T) {
		op := NewReplace("a", "u1", 0, 0, "", "")
		require.Error(t, Validate(op, 5))
	})
}

func TestApplyInsertDelete(t *testing.T) {
	t.Run("insert grows content by len(c)", func(t *testing.T) {
		content := "hello"
		op := NewInsert("a", "u1", 0, 5, " world")
		out := Apply(content, op)
		assert.Equal(t, "hello world", out)
		assert.Equal(t, len([]rune(content))+runeLen(op.Content), len([]rune(out)))
	})

	t.Run("delete shrinks content by length", func(t *testing.T) {
		content := "hello world"
		op := NewDelete("a", "u1", 0, 5, 6)
		out := Apply(content, op)
		assert.Equal(t, "hello", out)
		assert.Equal(t, len([]rune(content))-op.Length, len([]rune(out)))
	})

	t.Run("replace swaps a range", func(t *testing.T) {
		content := "hello world"
		op := NewReplace("a", "u1", 0, 6, "world", "there")
		assert.Equal(t, "hello there", Apply(content, op))
	})
}

// S1 from the scenario catalogue: Insert/Insert convergence on "ab".
func TestScenarioInsertInsertConvergence(t *testing.T) {
	content := "ab"

	u1 := NewInsert("u1-op", "U1", 0, 2, "X")
	u2 := NewInsert("u2-op", "U2", 0, 1, "Y")

	// U1 submitted first.
	u2Transformed, err := Transform(u2, []Operation{u1})
	require.NoError(t, err)
	result := Apply(Apply(content, u1), u2Transformed)
	assert.Equal(t, "aYbX", result)

	// Reverse order must converge to the same content (TP1).
	u1Transformed, err := Transform(u1, []Operation{u2})
	require.NoError(t, err)
	reverse := Apply(Apply(content, u2), u1Transformed)
	assert.Equal(t, "aYbX", reverse)
}

// S2: Delete/Insert overlap, insert-within-delete collapses to the delete's
// end position.
func TestScenarioDeleteInsertOverlap(t *testing.T) {
	content := "hello world"

	del := NewDelete("u1-op", "U1", 0, 6, 5)
	ins := NewInsert("u2-op", "U2", 0, 8, "!")

	transformedIns, err := Transform(ins, []Operation{del})
	require.NoError(t, err)
	assert.Equal(t, 6, transformedIns.Position)

	final := Apply(Apply(content, del), transformedIns)
	assert.Equal(t, "hello !", final)
	assert.Equal(t, 7, len([]rune(final)))
}

func TestTP1ConvergenceInsertDelete(t *testing.T) {
	content := "the quick brown fox"
	a := NewDelete("a", "U1", 0, 4, 6) // removes "quick "
	b := NewInsert("b", "U2", 0, 10, "XYZ")

	aPrime, err := TransformAgainst(a, b)
	require.NoError(t, err)
	bPrime, err := TransformAgainst(b, a)
	require.NoError(t, err)

	left := Apply(Apply(content, a), bPrime)
	right := Apply(Apply(content, b), aPrime)
	assert.Equal(t, left, right)
}

func TestTransformDeterministic(t *testing.T) {
	a := NewInsert("a", "U1", 0, 3, "Z")
	b := NewDelete("b", "U2", 0, 0, 2)

	r1, err1 := TransformAgainst(a, b)
	r2, err2 := TransformAgainst(a, b)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, r1, r2)
}

func TestInsertInsertTieBreakOnID(t *testing.T) {
	a := Operation{ID: "aaa", Kind: KindInsert, Position: 5, Content: "x"}
	b := Operation{ID: "bbb", Kind: KindInsert, Position: 5, Content: "yy"}

	// a.ID < b.ID lexicographically: a's position stays put.
	aPrime, err := TransformAgainst(a, b)
	require.NoError(t, err)
	assert.Equal(t, 5, aPrime.Position)

	// b.ID > a.ID: b shifts past a's insert.
	bPrime, err := TransformAgainst(b, a)
	require.NoError(t, err)
	assert.Equal(t, 6, bPrime.Position)
}

func TestReplaceVsReplaceOverlapIsConflict(t *testing.T) {
	a := NewReplace("a", "U1", 0, 2, "abc", "xy")
	b := NewReplace("b", "U2", 0, 3, "bcd", "z")

	_, err := TransformAgainst(a, b)
	require.Error(t, err)
}

func TestReplaceDecomposesAgainstInsert(t *testing.T) {
	a := NewReplace("a", "U1", 0, 5, "world", "there")
	b := NewInsert("b", "U2", 0, 0, ">> ")

	aPrime, err := TransformAgainst(a, b)
	require.NoError(t, err)
	assert.Equal(t, 5+runeLen(b.Content), aPrime.Position)
}

func TestTransformOrdersByVersionThenTimestampThenID(t *testing.T) {
	base := time.Now()
	late := Operation{ID: "z", Kind: KindInsert, Position: 0, Content: "1", Version: 1, Timestamp: base.Add(time.Second)}
	early := Operation{ID: "a", Kind: KindInsert, Position: 0, Content: "2", Version: 0, Timestamp: base}

	op := NewInsert("op", "U1", 0, 0, "X")
	out, err := Transform(op, []Operation{late, early})
	require.NoError(t, err)
	// Both ops insert at position 0 before op; op should end up shifted by
	// both, regardless of slice order, since Transform sorts internally.
	assert.Equal(t, 2, out.Position)
}
