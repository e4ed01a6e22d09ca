package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const MemberTable = "lib_members"

type MemberStatus string

const (
	MemberActive    MemberStatus = "active"
	MemberSuspended MemberStatus = "suspended"
	MemberExpired   MemberStatus = "expired"
)

func (s MemberStatus) Valid() bool {
	switch s {
	case MemberActive, MemberSuspended, MemberExpired:
		return true
	}
	return false
}

// Member 借阅人。OutstandingFines / ActiveLoanCount 是冗余列：
// 每次借还、罚款操作在同一事务里重算，Reconcile 可检测漂移。
type Member struct {
	ID     string       `gorm:"type:uuid;primaryKey" json:"id"`
	Name   string       `gorm:"size:200;not null" json:"name"`
	Email  string       `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Status MemberStatus `gorm:"size:20;not null;default:'active'" json:"status"`

	OutstandingFines decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"outstandingFines"`
	ActiveLoanCount  int             `gorm:"not null;default:0" json:"activeLoanCount"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Member) TableName() string { return MemberTable }
