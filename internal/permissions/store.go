package permissions

import "context"

// Store is the abstract hierarchy + grant interface the resolver consumes.
// It contains no SQL and no ORM concept — store_gorm.go is the one
// concrete implementation, but any backend satisfying this interface works.
type Store interface {
	// ParentsOf returns the parents of (kind, id) over edges with
	// InheritanceEnabled = true only.
	ParentsOf(ctx context.Context, kind ResourceKind, id string) ([]string, error)

	// ChildrenOf returns the children of (kind, id), same filter as ParentsOf.
	ChildrenOf(ctx context.Context, kind ResourceKind, id string) ([]string, error)

	// DirectPermissions returns the grant row for (kind, id, userID).
	// DirectGrant.Present is false when no row exists.
	DirectPermissions(ctx context.Context, kind ResourceKind, id, userID string) (DirectGrant, error)

	// Invalidate is a hook store writers call; the resolver's own Invalidate
	// wraps it so cache drops and store notifications stay in lockstep.
	Invalidate(ctx context.Context, kind ResourceKind, id string) error
}

// AuditStore is the narrow persistence seam audit.go writes through.
type AuditStore interface {
	RecordAuditLog(ctx context.Context, log AuditLog) error
	QueryAuditLogs(ctx context.Context, filter AuditFilter) ([]AuditLog, int64, error)
}
