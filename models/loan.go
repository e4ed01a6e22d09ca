package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	LoanTable        = "lib_loans"
	ReservationTable = "lib_reservations"
	FineTable        = "lib_fines"
)

type LoanStatus string

const (
	LoanActive   LoanStatus = "active"
	LoanOverdue  LoanStatus = "overdue"
	LoanReturned LoanStatus = "returned"
	LoanLost     LoanStatus = "lost"
)

// Open 表示仍占用副本（Active / Overdue）。
func (s LoanStatus) Open() bool { return s == LoanActive || s == LoanOverdue }

type Loan struct {
	ID         string     `gorm:"type:uuid;primaryKey" json:"id"`
	MemberID   string     `gorm:"type:uuid;index;not null" json:"memberId"`
	CopyID     string     `gorm:"type:uuid;index;not null" json:"copyId"`
	BookID     string     `gorm:"type:uuid;index;not null" json:"bookId"` // 仅用于查询
	LoanDate   time.Time  `gorm:"index;not null" json:"loanDate"`
	DueDate    time.Time  `gorm:"index;not null" json:"dueDate"`
	ReturnDate *time.Time `json:"returnDate,omitempty"`
	Status     LoanStatus `gorm:"size:20;not null;index" json:"status"`
	RenewCount int        `gorm:"not null;default:0" json:"renewCount"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationFulfilled ReservationStatus = "fulfilled"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationExpired   ReservationStatus = "expired"
)

// Reservation 预约队列条目。同一本书的 Active 条目按 (reservation_date, id) 排队，
// id 为 UUIDv7，创建顺序即 id 顺序。
type Reservation struct {
	ID              string            `gorm:"type:uuid;primaryKey" json:"id"`
	MemberID        string            `gorm:"type:uuid;index;not null" json:"memberId"`
	BookID          string            `gorm:"type:uuid;index;not null" json:"bookId"`
	CopyID          *string           `gorm:"type:uuid" json:"copyId,omitempty"`
	ReservationDate time.Time         `gorm:"index;not null" json:"reservationDate"`
	Status          ReservationStatus `gorm:"size:20;not null;index" json:"status"`
	PickupDeadline  *time.Time        `json:"pickupDeadline,omitempty"`
	LoanID          *string           `gorm:"type:uuid" json:"loanId,omitempty"` // 取书时借出的 loan
	Notes           string            `gorm:"size:500" json:"notes,omitempty"`
	CancelReason    string            `gorm:"size:500" json:"cancelReason,omitempty"`
	CancelledBy     string            `gorm:"size:20" json:"cancelledBy,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

type FineType string

const (
	FineOverdue FineType = "overdue"
	FineLost    FineType = "lost"
	FineDamage  FineType = "damage"
)

func (t FineType) Valid() bool {
	switch t {
	case FineOverdue, FineLost, FineDamage:
		return true
	}
	return false
}

type FineStatus string

const (
	FinePending FineStatus = "pending"
	FinePaid    FineStatus = "paid"
	FineWaived  FineStatus = "waived"
)

type Fine struct {
	ID       string          `gorm:"type:uuid;primaryKey" json:"id"`
	MemberID string          `gorm:"type:uuid;index;not null" json:"memberId"`
	LoanID   *string         `gorm:"type:uuid;index" json:"loanId,omitempty"`
	Type     FineType        `gorm:"size:20;not null" json:"type"`
	Amount   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Status   FineStatus      `gorm:"size:20;not null;index" json:"status"`
	Notes    string          `gorm:"size:500" json:"notes,omitempty"`

	IssuedAt         time.Time  `gorm:"not null" json:"issuedAt"`
	PaidAt           *time.Time `json:"paidAt,omitempty"`
	PaymentMethod    string     `gorm:"size:40" json:"paymentMethod,omitempty"`
	PaymentReference string     `gorm:"size:120" json:"paymentReference,omitempty"`
	WaivedAt         *time.Time `json:"waivedAt,omitempty"`
	WaivedBy         string     `gorm:"size:64" json:"waivedBy,omitempty"`
	WaiverReason     string     `gorm:"size:500" json:"waiverReason,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Loan) TableName() string        { return LoanTable }
func (Reservation) TableName() string { return ReservationTable }
func (Fine) TableName() string        { return FineTable }
