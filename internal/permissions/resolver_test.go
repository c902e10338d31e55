package permissions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store for testing traversal without a database.
type fakeStore struct {
	edges  []HierarchyEdge
	grants map[string]DirectGrant // key: kind|resourceID|userID
}

func newFakeStore() *fakeStore {
	return &fakeStore{grants: make(map[string]DirectGrant)}
}

func grantKey(kind ResourceKind, resourceID, userID string) string {
	return string(kind) + "|" + resourceID + "|" + userID
}

func (s *fakeStore) addEdge(kind ResourceKind, parent, child string, enabled bool) {
	s.edges = append(s.edges, HierarchyEdge{Kind: kind, ParentID: parent, ChildID: child, InheritanceEnabled: enabled})
}

func (s *fakeStore) setGrant(kind ResourceKind, resourceID, userID string, role Role, tokens []string) {
	s.grants[grantKey(kind, resourceID, userID)] = DirectGrant{Role: role, Tokens: tokens, Present: true}
}

func (s *fakeStore) ParentsOf(ctx context.Context, kind ResourceKind, id string) ([]string, error) {
	var out []string
	for _, e := range s.edges {
		if e.Kind == kind && e.ChildID == id && e.InheritanceEnabled {
			out = append(out, e.ParentID)
		}
	}
	return out, nil
}

func (s *fakeStore) ChildrenOf(ctx context.Context, kind ResourceKind, id string) ([]string, error) {
	var out []string
	for _, e := range s.edges {
		if e.Kind == kind && e.ParentID == id && e.InheritanceEnabled {
			out = append(out, e.ChildID)
		}
	}
	return out, nil
}

func (s *fakeStore) DirectPermissions(ctx context.Context, kind ResourceKind, id, userID string) (DirectGrant, error) {
	g, ok := s.grants[grantKey(kind, id, userID)]
	if !ok {
		return DirectGrant{Present: false}, nil
	}
	return g, nil
}

func (s *fakeStore) Invalidate(ctx context.Context, kind ResourceKind, id string) error { return nil }

// S3: permission inheritance.
func TestScenarioPermissionInheritance(t *testing.T) {
	store := newFakeStore()
	store.addEdge(KindProject, "P_parent", "P_child", true)
	store.setGrant(KindProject, "P_parent", "U", RoleMember, []string{"read", "write"})

	r := NewResolver(store, DefaultMaxDepth)
	resolved, err := r.Resolve(context.Background(), "U", KindProject, "P_child")
	require.NoError(t, err)

	assert.Equal(t, []string{"read", "write"}, resolved.Effective)
	assert.Equal(t, RoleMember, resolved.Role)
	require.Len(t, resolved.Inherited, 1)
	assert.Equal(t, "P_parent", resolved.Inherited[0].SourceID)
	assert.Equal(t, 1, resolved.Inherited[0].Depth)

	// Disable inheritance on the edge, invalidate, and re-resolve.
	store.edges[0].InheritanceEnabled = false
	r.Invalidate(context.Background(), "U", KindProject, "P_child")

	resolved, err = r.Resolve(context.Background(), "U", KindProject, "P_child")
	require.NoError(t, err)
	assert.Empty(t, resolved.Effective)
	assert.Equal(t, RoleViewer, resolved.Role)
}

// S4: depth cap.
func TestScenarioDepthCap(t *testing.T) {
	store := newFakeStore()
	chain := []string{"P0", "P1", "P2", "P3", "P4", "P5", "P6"}
	for i := 1; i < len(chain); i++ {
		store.addEdge(KindProject, chain[i], chain[i-1], true) // parent=chain[i], child=chain[i-1]
	}
	store.setGrant(KindProject, "P6", "U", RoleViewer, []string{"read"})

	rShallow := NewResolver(store, 5)
	resolved, err := rShallow.Resolve(context.Background(), "U", KindProject, "P0")
	require.NoError(t, err)
	assert.Empty(t, resolved.Effective)

	rDeep := NewResolver(store, 6)
	resolved, err = rDeep.Resolve(context.Background(), "U", KindProject, "P0")
	require.NoError(t, err)
	assert.Equal(t, []string{"read"}, resolved.Effective)
}

// S5: cycle safety.
func TestScenarioCycleSafety(t *testing.T) {
	store := newFakeStore()
	store.addEdge(KindTeam, "B", "A", true) // parent=B, child=A
	store.addEdge(KindTeam, "A", "B", true) // parent=A, child=B

	r := NewResolver(store, DefaultMaxDepth)

	done := make(chan struct{})
	go func() {
		_, err := r.Resolve(context.Background(), "U", KindTeam, "A")
		require.NoError(t, err)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("resolve did not terminate on a cyclic hierarchy")
	}

	tree, err := r.BuildTree(context.Background(), KindTeam, "A")
	require.NoError(t, err)
	assertNoPathRepeats(t, tree, map[string]bool{})
}

func assertNoPathRepeats(t *testing.T, node *Tree, seenOnPath map[string]bool) {
	t.Helper()
	require.Falsef(t, seenOnPath[node.ID], "node %q repeated on the same path", node.ID)
	seenOnPath[node.ID] = true
	for _, c := range node.Children {
		assertNoPathRepeats(t, c, seenOnPath)
	}
	delete(seenOnPath, node.ID)
}

// Property 9: depth bound.
func TestDepthBoundOnInheritedContributions(t *testing.T) {
	store := newFakeStore()
	chain := []string{"P0", "P1", "P2", "P3"}
	for i := 1; i < len(chain); i++ {
		store.addEdge(KindProject, chain[i], chain[i-1], true)
	}
	store.setGrant(KindProject, "P1", "U", RoleViewer, []string{"read"})
	store.setGrant(KindProject, "P3", "U", RoleViewer, []string{"write"})

	r := NewResolver(store, 2)
	resolved, err := r.Resolve(context.Background(), "U", KindProject, "P0")
	require.NoError(t, err)
	for _, c := range resolved.Inherited {
		assert.LessOrEqual(t, c.Depth, 2)
	}
}

// Property 10: monotonicity of tokens.
func TestMonotonicityOfTokens(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store, DefaultMaxDepth)

	before, err := r.Resolve(context.Background(), "U", KindProject, "P1")
	require.NoError(t, err)
	assert.Empty(t, before.Effective)

	store.setGrant(KindProject, "P1", "U", RoleMember, []string{"read"})
	r.Invalidate(context.Background(), "U", KindProject, "P1")

	after, err := r.Resolve(context.Background(), "U", KindProject, "P1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(after.Effective), len(before.Effective))
	assert.Contains(t, after.Effective, "read")
}

// Property 11: default role.
func TestDefaultRoleIsViewerWithEmptyTokens(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store, DefaultMaxDepth)

	resolved, err := r.Resolve(context.Background(), "ghost", KindProject, "P1")
	require.NoError(t, err)
	assert.Equal(t, RoleViewer, resolved.Role)
	assert.Empty(t, resolved.Effective)
}
