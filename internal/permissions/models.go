// Package permissions implements hierarchical RBAC resolution: direct
// grants, inheritance over team/project hierarchy edges, caching, and
// audit logging of access decisions.
package permissions

import "time"

// ResourceKind distinguishes the two disjoint hierarchy domains. A single
// traversal is parameterised by kind rather than duplicated per domain, per
// the "polymorphism over resource kind" design note.
type ResourceKind string

const (
	KindTeam    ResourceKind = "team"
	KindProject ResourceKind = "project"
)

// Role is the total order viewer < member < admin < owner.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

// Level returns this role's position in the total order:
// {owner:4, admin:3, member:2, viewer:1}.
func (r Role) Level() int {
	switch r {
	case RoleOwner:
		return 4
	case RoleAdmin:
		return 3
	case RoleMember:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// higherRole returns whichever of a, b outranks the other by Level.
func higherRole(a, b Role) Role {
	if a.Level() >= b.Level() {
		return a
	}
	return b
}

// DirectGrant is a (resource_kind, resource_id, user_id) row: a role plus a
// set of permission tokens. Present returns false when no row exists for
// this triple, distinguishing "absent" from "present with empty tokens" so
// role defaulting only happens on true absence.
type DirectGrant struct {
	Role    Role
	Tokens  []string
	Present bool
}

// HierarchyEdge is a directed parent -> child edge over one ResourceKind
// domain, carrying the bit that gates whether it participates in
// inheritance traversal at all.
type HierarchyEdge struct {
	Kind               ResourceKind
	ParentID           string
	ChildID            string
	InheritanceEnabled bool
}

// InheritedContribution records one ancestor's grant reaching a resource
// through the traversal, annotated with how far it had to travel.
type InheritedContribution struct {
	SourceID string
	Depth    int
	Role     Role
	Tokens   []string
}

// ResolvedPermission is the resolver's output for one (user, resource) pair.
type ResolvedPermission struct {
	UserID       string
	ResourceKind ResourceKind
	ResourceID   string

	DirectTokens []string
	Inherited    []InheritedContribution
	Effective    []string
	Role         Role
}

// PermissionRule is carried verbatim from the source's schema even though
// the default resolver never consults it — see DESIGN.md's open-question
// resolution. ApplyRules (rules.go) is the opt-in layer that does.
type PermissionRule struct {
	ID          string
	ResourceID  string
	Priority    int
	Description string
	Grant       []string
	Revoke      []string
}

// AuditLog is one recorded permission-check outcome; gorm tags keep it
// storable as-is via store_gorm.go.
type AuditLog struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`

	ActorID      string `json:"actor_id" gorm:"index"`
	ResourceKind string `json:"resource_kind" gorm:"index"`
	ResourceID   string `json:"resource_id" gorm:"index"`
	Action       string `json:"action" gorm:"index"`
	Outcome      string `json:"outcome"` // granted, denied
	Token        string `json:"token"`
	Detail       string `json:"detail"`
}

// Tree is the operator-visualisation output of build_tree: does not join in
// user data, just the hierarchy shape.
type Tree struct {
	ID                   string
	Kind                 ResourceKind
	PermissionsInherited bool
	HasChildren          bool
	Children             []*Tree
}
