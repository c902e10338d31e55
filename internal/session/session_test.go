package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabforge/core/internal/ot"
)

func drain(t *testing.T, sub *Subscription) []Event {
	t.Helper()
	var out []Event
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

// Property 5: monotone version.
func TestMonotoneVersion(t *testing.T) {
	r := NewRegistry(DefaultBufferSize)
	require.NoError(t, r.Create("s1", "p1", "f1"))
	require.NoError(t, r.Join("s1", "U1"))

	v, err := r.Submit("s1", ot.NewInsert("op1", "U1", 0, 0, "hi"))
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = r.Submit("s1", ot.NewInsert("op2", "U1", 1, 2, "!"))
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

// Property 6: broadcast non-echo.
func TestBroadcastNonEcho(t *testing.T) {
	r := NewRegistry(DefaultBufferSize)
	require.NoError(t, r.Create("s1", "p1", "f1"))
	require.NoError(t, r.Join("s1", "U1"))
	require.NoError(t, r.Join("s1", "U2"))

	subU1, err := r.Subscribe("s1", "U1")
	require.NoError(t, err)
	subU2, err := r.Subscribe("s1", "U2")
	require.NoError(t, err)

	_, err = r.Submit("s1", ot.NewInsert("op1", "U1", 0, 0, "hi"))
	require.NoError(t, err)

	assert.Empty(t, drain(t, subU1), "author must not see its own op echoed back")
	events := drain(t, subU2)
	require.Len(t, events, 1)
	assert.Equal(t, "hi", events[0].Op.Content)
}

// Property 7: late-join safety.
func TestLateJoinSafety(t *testing.T) {
	r := NewRegistry(DefaultBufferSize)
	require.NoError(t, r.Create("s1", "p1", "f1"))
	require.NoError(t, r.Join("s1", "U1"))

	_, err := r.Submit("s1", ot.NewInsert("op1", "U1", 0, 0, "hi"))
	require.NoError(t, err)

	// A second user joins after version 1 is already committed.
	require.NoError(t, r.Join("s1", "U2"))
	subU2, err := r.Subscribe("s1", "U2")
	require.NoError(t, err)

	assert.Empty(t, drain(t, subU2), "a late subscriber must not see ops published before it subscribed")

	report, err := r.DetectConflicts("s1", "U2", 1)
	require.NoError(t, err)
	for _, op := range report.ConflictingOperations {
		assert.GreaterOrEqual(t, op.Version, 1)
	}
}

type stubGate struct {
	allow map[string]bool
}

func (g *stubGate) HasPermission(userID, projectID, token string) (bool, error) {
	return g.allow[userID+":"+token], nil
}

// S6: authorization gate denies submit, version unchanged, no broadcast.
func TestAuthorizationGateDeniesSubmit(t *testing.T) {
	r := NewRegistry(DefaultBufferSize)
	r.SetAuthGate(&stubGate{allow: map[string]bool{"U1:read": true}})

	require.NoError(t, r.Create("s1", "p1", "f1"))
	require.NoError(t, r.Join("s1", "U1"))

	sub, err := r.Subscribe("s1", "U2")
	require.NoError(t, err)

	_, err = r.Submit("s1", ot.NewInsert("op1", "U1", 0, 0, "hi"))
	require.Error(t, err)

	s, getErr := r.get("s1")
	require.NoError(t, getErr)
	assert.Equal(t, 0, s.version_())
	assert.Empty(t, drain(t, sub))
}

func TestSessionStateMachineRejectsSubmitBeforeJoin(t *testing.T) {
	r := NewRegistry(DefaultBufferSize)
	require.NoError(t, r.Create("s1", "p1", "f1"))

	_, err := r.Submit("s1", ot.NewInsert("op1", "U1", 0, 0, "hi"))
	require.Error(t, err)
}

func TestSessionDestroyedOnLastLeave(t *testing.T) {
	r := NewRegistry(DefaultBufferSize)
	require.NoError(t, r.Create("s1", "p1", "f1"))
	require.NoError(t, r.Join("s1", "U1"))
	require.NoError(t, r.Leave("s1", "U1"))

	_, err := r.Submit("s1", ot.NewInsert("op1", "U1", 0, 0, "hi"))
	require.Error(t, err)
}
