package circulation

import (
	"context"
	"time"

	"library_circulation/models"
)

// PageRequest is a 1-based page of a List query.
type PageRequest struct {
	Page int
	Size int
}

// Normalize 与 ListUsers 相同的默认值：page<=0 -> 1，size 非法 -> 20。
func (p PageRequest) Normalize() PageRequest {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.Size <= 0 || p.Size > 200 {
		p.Size = 20
	}
	return p
}

func (p PageRequest) Offset() int { return (p.Page - 1) * p.Size }

type Page[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
}

// Repository is the per-entity data access contract. F is the entity's filter
// type and acts as the predicate for Find/First/Exists/Count/List. All calls run
// inside the transaction the repository was obtained from.
type Repository[T any, F any] interface {
	Get(ctx context.Context, id string) (*T, error)
	// GetForUpdate 读取并锁住该行直到事务结束。
	GetForUpdate(ctx context.Context, id string) (*T, error)
	Find(ctx context.Context, filter F) ([]T, error)
	First(ctx context.Context, filter F) (*T, error)
	Exists(ctx context.Context, filter F) (bool, error)
	Count(ctx context.Context, filter F) (int64, error)
	Add(ctx context.Context, entity *T) error
	Update(ctx context.Context, entity *T) error
	Delete(ctx context.Context, entity *T) error
	List(ctx context.Context, filter F, page PageRequest) (Page[T], error)
}

type (
	MemberRepository      = Repository[models.Member, MemberFilter]
	BookRepository        = Repository[models.Book, BookFilter]
	CopyRepository        = Repository[models.BookCopy, CopyFilter]
	LoanRepository        = Repository[models.Loan, LoanFilter]
	ReservationRepository = Repository[models.Reservation, ReservationFilter]
	FineRepository        = Repository[models.Fine, FineFilter]
)

// Tx is one unit of work. Either Commit or Rollback must be called exactly once.
type Tx interface {
	Members() MemberRepository
	Books() BookRepository
	Copies() CopyRepository
	Loans() LoanRepository
	Reservations() ReservationRepository
	Fines() FineRepository

	Commit() error
	Rollback() error
}

// Store begins transactions.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

type NotificationKind string

const (
	NotifyOverdue              NotificationKind = "overdue_reminder"
	NotifyReservationAvailable NotificationKind = "reservation_available"
	NotifyReservationExpired   NotificationKind = "reservation_expired"
)

// Notifier delivers member notifications. Fire-and-forget: a failure never
// rolls back the circulation change that triggered it.
type Notifier interface {
	Notify(ctx context.Context, memberID string, kind NotificationKind, subject, message string) error
}

// AuditSink records successful mutations, best-effort.
type AuditSink interface {
	Record(ctx context.Context, entityType, entityID, action string, before, after any) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, NotificationKind, string, string) error {
	return nil
}

type nopAudit struct{}

func (nopAudit) Record(context.Context, string, string, string, any, any) error { return nil }

type actorKey struct{}

// WithActor attaches the acting staff/user id to ctx for audit attribution.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

func ActorFrom(ctx context.Context) string {
	v, _ := ctx.Value(actorKey{}).(string)
	return v
}

// ---- filters ----
// 每个 Filter 既是 gorm 查询条件，也提供 Match 供内存实现使用；空字段表示不过滤。

type MemberFilter struct {
	IDs    []string
	Email  string
	Status []models.MemberStatus
}

func (f MemberFilter) Match(m models.Member) bool {
	return matchIn(f.IDs, m.ID) && (f.Email == "" || f.Email == m.Email) && matchIn(f.Status, m.Status)
}

type BookFilter struct {
	IDs  []string
	ISBN string
}

func (f BookFilter) Match(b models.Book) bool {
	return matchIn(f.IDs, b.ID) && (f.ISBN == "" || f.ISBN == b.ISBN)
}

type CopyFilter struct {
	IDs    []string
	BookID string
	Status []models.CopyStatus
}

func (f CopyFilter) Match(c models.BookCopy) bool {
	return matchIn(f.IDs, c.ID) && (f.BookID == "" || f.BookID == c.BookID) && matchIn(f.Status, c.Status)
}

type LoanFilter struct {
	IDs      []string
	MemberID string
	CopyID   string
	BookID   string
	Status   []models.LoanStatus
	// DueBefore 只保留 due_date < DueBefore 的记录。
	DueBefore *time.Time
}

func (f LoanFilter) Match(l models.Loan) bool {
	return matchIn(f.IDs, l.ID) &&
		(f.MemberID == "" || f.MemberID == l.MemberID) &&
		(f.CopyID == "" || f.CopyID == l.CopyID) &&
		(f.BookID == "" || f.BookID == l.BookID) &&
		matchIn(f.Status, l.Status) &&
		(f.DueBefore == nil || l.DueDate.Before(*f.DueBefore))
}

type ReservationFilter struct {
	IDs      []string
	MemberID string
	BookID   string
	CopyID   string
	Status   []models.ReservationStatus
	// Unclaimed 只保留尚未被借出取走的记录（loan_id IS NULL）。
	Unclaimed    bool
	PickupBefore *time.Time
}

func (f ReservationFilter) Match(r models.Reservation) bool {
	return matchIn(f.IDs, r.ID) &&
		(f.MemberID == "" || f.MemberID == r.MemberID) &&
		(f.BookID == "" || f.BookID == r.BookID) &&
		(f.CopyID == "" || (r.CopyID != nil && *r.CopyID == f.CopyID)) &&
		matchIn(f.Status, r.Status) &&
		(!f.Unclaimed || r.LoanID == nil) &&
		(f.PickupBefore == nil || (r.PickupDeadline != nil && r.PickupDeadline.Before(*f.PickupBefore)))
}

type FineFilter struct {
	IDs      []string
	MemberID string
	LoanID   string
	Type     []models.FineType
	Status   []models.FineStatus
}

func (f FineFilter) Match(x models.Fine) bool {
	return matchIn(f.IDs, x.ID) &&
		(f.MemberID == "" || f.MemberID == x.MemberID) &&
		(f.LoanID == "" || (x.LoanID != nil && *x.LoanID == f.LoanID)) &&
		matchIn(f.Type, x.Type) &&
		matchIn(f.Status, x.Status)
}

func matchIn[V comparable](set []V, v V) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

var openLoanStatuses = []models.LoanStatus{models.LoanActive, models.LoanOverdue}
