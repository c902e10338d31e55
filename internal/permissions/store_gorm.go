package permissions

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/collabforge/core/internal/apierr"
)

// gormHierarchyEdge is the persisted row backing HierarchyEdge, following
// a plain gorm
// struct per table with explicit column tags rather than a generic KV
// schema.
type gormHierarchyEdge struct {
	ID                 uint   `gorm:"primarykey"`
	Kind               string `gorm:"not null;index:idx_edge_lookup"`
	ParentID           string `gorm:"not null;index:idx_edge_lookup"`
	ChildID            string `gorm:"not null;index:idx_edge_child"`
	InheritanceEnabled bool   `gorm:"default:true"`
}

func (gormHierarchyEdge) TableName() string { return "hierarchy_edges" }

// gormDirectGrant is the persisted row backing DirectGrant.
type gormDirectGrant struct {
	ID           uint   `gorm:"primarykey"`
	Kind         string `gorm:"not null;index:idx_grant_lookup"`
	ResourceID   string `gorm:"not null;index:idx_grant_lookup"`
	UserID       string `gorm:"not null;index:idx_grant_lookup"`
	Role         string `gorm:"not null;default:'viewer'"`
	TokensCSV    string `gorm:"column:tokens"` // comma-joined; token set is small and unordered
}

func (gormDirectGrant) TableName() string { return "direct_grants" }

// gormDocumentVersion is the checkpoint row backing the optional
// (version, content) snapshot hook session.Registry calls after each
// successful submit and on its periodic sweep. One row per session id,
// upserted in place rather than appended — the core treats the op log
// itself as in-memory session state, so this table only ever needs the
// latest snapshot, not a replayable history.
type gormDocumentVersion struct {
	SessionID string `gorm:"primarykey"`
	Version   int    `gorm:"not null"`
	Content   string
	UpdatedAt time.Time
}

func (gormDocumentVersion) TableName() string { return "document_versions" }

// GormStore is the gorm-backed Store + AuditStore implementation, following
// a *gorm.DB-holding service struct
// (internal/enterprise/rbac.go's RBACService, audit.go's AuditService).
type GormStore struct {
	db *gorm.DB
}

// NewGormStore builds a GormStore and auto-migrates its tables, mirroring
// NewRBACService/NewAuditService's AutoMigrate-on-construct convention.
func NewGormStore(db *gorm.DB) *GormStore {
	db.AutoMigrate(&gormHierarchyEdge{}, &gormDirectGrant{}, &AuditLog{}, &gormDocumentVersion{})
	return &GormStore{db: db}
}

// SaveCheckpoint upserts the latest (version, content) snapshot for
// sessionID, satisfying session.CheckpointStore. Implements spec's
// optional checkpoint hook over the "document versions" persisted table.
func (s *GormStore) SaveCheckpoint(sessionID string, version int, content string) error {
	row := gormDocumentVersion{SessionID: sessionID, Version: version, Content: content, UpdatedAt: time.Now()}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"version", "content", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return &apierr.StoreFailure{Detail: "save_checkpoint", Err: err}
	}
	return nil
}

func (s *GormStore) ParentsOf(ctx context.Context, kind ResourceKind, id string) ([]string, error) {
	var rows []gormHierarchyEdge
	err := s.db.WithContext(ctx).
		Where("kind = ? AND child_id = ? AND inheritance_enabled = ?", string(kind), id, true).
		Find(&rows).Error
	if err != nil {
		return nil, &apierr.StoreFailure{Detail: "parents_of", Err: err}
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ParentID
	}
	return out, nil
}

func (s *GormStore) ChildrenOf(ctx context.Context, kind ResourceKind, id string) ([]string, error) {
	var rows []gormHierarchyEdge
	err := s.db.WithContext(ctx).
		Where("kind = ? AND parent_id = ? AND inheritance_enabled = ?", string(kind), id, true).
		Find(&rows).Error
	if err != nil {
		return nil, &apierr.StoreFailure{Detail: "children_of", Err: err}
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ChildID
	}
	return out, nil
}

func (s *GormStore) DirectPermissions(ctx context.Context, kind ResourceKind, id, userID string) (DirectGrant, error) {
	var row gormDirectGrant
	err := s.db.WithContext(ctx).
		Where("kind = ? AND resource_id = ? AND user_id = ?", string(kind), id, userID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DirectGrant{Present: false}, nil
	}
	if err != nil {
		return DirectGrant{}, &apierr.StoreFailure{Detail: "direct_permissions", Err: err}
	}
	return DirectGrant{
		Role:    Role(row.Role),
		Tokens:  splitTokens(row.TokensCSV),
		Present: true,
	}, nil
}

func (s *GormStore) Invalidate(ctx context.Context, kind ResourceKind, id string) error {
	// The gorm store itself holds no cache; Resolver.Invalidate is the
	// layer that reacts to writes. This is a no-op hook kept to satisfy the
	// Store interface for callers that invalidate through the store alone.
	return nil
}

func (s *GormStore) RecordAuditLog(ctx context.Context, log AuditLog) error {
	if err := s.db.WithContext(ctx).Create(&log).Error; err != nil {
		return &apierr.StoreFailure{Detail: "record_audit_log", Err: err}
	}
	return nil
}

func (s *GormStore) QueryAuditLogs(ctx context.Context, filter AuditFilter) ([]AuditLog, int64, error) {
	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}

	q := s.db.WithContext(ctx).Model(&AuditLog{})
	if filter.ResourceID != "" {
		q = q.Where("resource_id = ?", filter.ResourceID)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if filter.ActorID != "" {
		q = q.Where("actor_id = ?", filter.ActorID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, &apierr.StoreFailure{Detail: "query_audit_logs count", Err: err}
	}

	var logs []AuditLog
	offset := (page - 1) * pageSize
	err := q.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&logs).Error
	if err != nil {
		return nil, 0, &apierr.StoreFailure{Detail: "query_audit_logs", Err: err}
	}
	return logs, total, nil
}

func splitTokens(csv string) []string {
	if csv == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			if i > start {
				out = append(out, csv[start:i])
			}
			start = i + 1
		}
	}
	return out
}
