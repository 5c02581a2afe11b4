package service

import (
	"context"

	"sophia/internal/authz"
	"sophia/internal/models"
	"sophia/internal/repository"

	"gorm.io/gorm"
)

// AuditService serves the compliance trail to management.
type AuditService struct {
	db     *gorm.DB
	policy *authz.Policy
}

// NewAuditService creates a new audit service.
func NewAuditService(db *gorm.DB, policy *authz.Policy) *AuditService {
	return &AuditService{db: db, policy: policy}
}

// Query returns audit entries matching the filter, newest first. Restricted
// to superusers and managers.
func (s *AuditService) Query(ctx context.Context, actor authz.Actor, filter repository.AuditFilter, page, perPage int) ([]*models.AuditEntry, error) {
	if !s.policy.CanQueryAudit(actor) {
		return nil, models.NewForbiddenError("Only management may query the audit trail")
	}
	if perPage <= 0 {
		perPage = defaultPageSize
	}
	if perPage > maxPageSize {
		perPage = maxPageSize
	}
	if page <= 0 {
		page = 1
	}
	return repository.NewAuditRepository(s.db).List(ctx, filter, perPage, (page-1)*perPage)
}
