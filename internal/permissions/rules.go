package permissions

import "sort"

// SetRules installs the optional rule set ApplyRules consults. The default
// Resolve/HasPermission path never calls ApplyRules — union-of-tokens is
// the documented default; rules are an opt-in transform layered on top for
// callers that need priority-based overrides.
func (r *Resolver) SetRules(rules []PermissionRule) {
	r.rules = rules
}

// ApplyRules takes an already-resolved permission set and reapplies this
// resolver's PermissionRule set in descending priority order, letting later
// (lower-priority) rules be overridden by earlier (higher-priority) ones.
// A rule whose ResourceID does not match resolved.ResourceID is skipped.
func (r *Resolver) ApplyRules(resolved ResolvedPermission) ResolvedPermission {
	applicable := make([]PermissionRule, 0, len(r.rules))
	for _, rule := range r.rules {
		if rule.ResourceID == resolved.ResourceID {
			applicable = append(applicable, rule)
		}
	}
	sort.Slice(applicable, func(i, j int) bool {
		return applicable[i].Priority > applicable[j].Priority
	})

	tokens := make(map[string]struct{}, len(resolved.Effective))
	for _, t := range resolved.Effective {
		tokens[t] = struct{}{}
	}

	// Lowest priority first so each subsequent (higher-priority) rule has
	// the final say on any token it touches.
	for i := len(applicable) - 1; i >= 0; i-- {
		rule := applicable[i]
		for _, t := range rule.Grant {
			tokens[t] = struct{}{}
		}
		for _, t := range rule.Revoke {
			delete(tokens, t)
		}
	}

	out := make([]string, 0, len(tokens))
	for t := range tokens {
		out = append(out, t)
	}
	sort.Strings(out)

	resolved.Effective = out
	return resolved
}
