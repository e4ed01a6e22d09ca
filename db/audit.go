package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"gorm.io/gorm"

	"library_circulation/circulation"
	"library_circulation/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Repo holds read models and the audit trail that sit beside the unit of work.
type Repo struct{ DB *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{DB: db} }

// Record implements circulation.AuditSink. It runs after the business
// transaction committed, on its own connection.
func (r *Repo) Record(ctx context.Context, entityType, entityID, action string, before, after any) error {
	b, err := encodeState(before)
	if err != nil {
		return fmt.Errorf("encode before state: %w", err)
	}
	a, err := encodeState(after)
	if err != nil {
		return fmt.Errorf("encode after state: %w", err)
	}
	row := &models.AuditLog{
		ID:         uuid.NewString(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		ActorID:    circulation.ActorFrom(ctx),
		Before:     b,
		After:      a,
	}
	if err := r.DB.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func encodeState(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.MarshalToString(v)
	if err != nil {
		return nil, err
	}
	if raw == "null" {
		return nil, nil
	}
	return &raw, nil
}

// AuditHistory 某实体的变更记录，最新在前。entityID 为空时列出该类型全部。
func (r *Repo) AuditHistory(ctx context.Context, entityType, entityID string, page circulation.PageRequest) (circulation.Page[models.AuditLog], error) {
	page = page.Normalize()
	out := circulation.Page[models.AuditLog]{Page: page.Page, Size: page.Size, Items: []models.AuditLog{}}

	q := r.DB.WithContext(ctx).Model(&models.AuditLog{})
	if entityType != "" {
		q = q.Where("entity_type = ?", entityType)
	}
	if entityID != "" {
		q = q.Where("entity_id = ?", entityID)
	}
	if err := q.Count(&out.Total).Error; err != nil {
		return out, translate(err)
	}
	if err := q.Order("created_at DESC").Offset(page.Offset()).Limit(page.Size).Find(&out.Items).Error; err != nil {
		return out, translate(err)
	}
	return out, nil
}
