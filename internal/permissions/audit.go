package permissions

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/collabforge/core/internal/apierr"
	"github.com/collabforge/core/internal/logging"
)

// AuditFilter is the query parameter set for the audit trail, scoped by
// resource rather than organization.
type AuditFilter struct {
	ResourceID string
	Action     string
	ActorID    string
	Page       int
	PageSize   int
}

// Auditor records and queries permission-check outcomes. An actor without
// view_audit may only query their own logs.
type Auditor struct {
	store AuditStore
}

// NewAuditor builds an Auditor over store.
func NewAuditor(store AuditStore) *Auditor {
	return &Auditor{store: store}
}

// Record writes one audit entry. Storage failures are logged, not
// propagated — a missed audit log must never block the permission decision
// it describes.
func (a *Auditor) Record(ctx context.Context, log AuditLog) {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	if log.Outcome == "" {
		log.Outcome = "granted"
	}
	if err := a.store.RecordAuditLog(ctx, log); err != nil {
		logging.L().Warn("audit log write failed", zap.Error(err))
	}
}

// Query returns audit logs matching filter, enforcing read-scoping: a
// requester who lacks view_audit on the resource may only see logs whose
// ActorID equals their own. hasViewAudit is the caller's already-resolved
// answer to that permission check; Query does not consult a resolver itself.
func (a *Auditor) Query(ctx context.Context, requesterID string, hasViewAudit bool, filter AuditFilter) ([]AuditLog, int64, error) {
	if !hasViewAudit {
		if filter.ActorID != "" && filter.ActorID != requesterID {
			return nil, 0, &apierr.Forbidden{UserID: requesterID, Resource: filter.ResourceID, Token: "view_audit"}
		}
		filter.ActorID = requesterID
	}
	return a.store.QueryAuditLogs(ctx, filter)
}
