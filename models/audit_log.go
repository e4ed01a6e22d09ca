package models

import "time"

// AuditLog 记录每次成功变更的前后状态（JSON 文本）。
type AuditLog struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	EntityType string    `gorm:"size:40;index:idx_audit_entity;not null" json:"entityType"`
	EntityID   string    `gorm:"size:64;index:idx_audit_entity;not null" json:"entityId"`
	Action     string    `gorm:"size:40;not null" json:"action"`
	ActorID    string    `gorm:"size:64" json:"actorId,omitempty"`
	Before     *string   `gorm:"type:text" json:"before,omitempty"`
	After      *string   `gorm:"type:text" json:"after,omitempty"`
	CreatedAt  time.Time `gorm:"index" json:"createdAt"`
}

func (AuditLog) TableName() string { return "lib_audit_log" }
