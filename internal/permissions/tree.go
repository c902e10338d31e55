package permissions

import "context"

// BuildTree recurses via ChildrenOf, bounded by the resolver's maxDepth. It
// does not join in user data — purely a hierarchy-shape visualisation for
// operators.
func (r *Resolver) BuildTree(ctx context.Context, kind ResourceKind, rootID string) (*Tree, error) {
	visiting := map[string]struct{}{rootID: {}}
	return r.buildTreeAt(ctx, kind, rootID, 0, visiting)
}

// buildTreeAt expands node id's children, skipping any child already on the
// current path (visiting) entirely rather than re-inserting it as a
// duplicate leaf — a cycle closes the path, it does not repeat a node on
// it, per the "each node appears at most once per path" guarantee.
func (r *Resolver) buildTreeAt(ctx context.Context, kind ResourceKind, id string, depth int, visiting map[string]struct{}) (*Tree, error) {
	node := &Tree{ID: id, Kind: kind}

	if depth >= r.maxDepth {
		return node, nil
	}

	children, err := r.store.ChildrenOf(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	var expandable []string
	for _, childID := range children {
		if _, cycling := visiting[childID]; !cycling {
			expandable = append(expandable, childID)
		}
	}

	node.HasChildren = len(expandable) > 0
	node.PermissionsInherited = node.HasChildren

	for _, childID := range expandable {
		visiting[childID] = struct{}{}
		childTree, err := r.buildTreeAt(ctx, kind, childID, depth+1, visiting)
		delete(visiting, childID)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, childTree)
	}

	return node, nil
}
