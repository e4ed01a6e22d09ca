package db

import (
	"gorm.io/gorm"

	"library_circulation/circulation"
)

// 每个 Filter 对应一个 scope；空字段不加条件，与 Filter.Match 语义一致。

func memberScope(q *gorm.DB, f circulation.MemberFilter) *gorm.DB {
	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}
	if f.Email != "" {
		q = q.Where("email = ?", f.Email)
	}
	if len(f.Status) > 0 {
		q = q.Where("status IN ?", f.Status)
	}
	return q
}

func bookScope(q *gorm.DB, f circulation.BookFilter) *gorm.DB {
	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}
	if f.ISBN != "" {
		q = q.Where("isbn = ?", f.ISBN)
	}
	return q
}

func copyScope(q *gorm.DB, f circulation.CopyFilter) *gorm.DB {
	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}
	if f.BookID != "" {
		q = q.Where("book_id = ?", f.BookID)
	}
	if len(f.Status) > 0 {
		q = q.Where("status IN ?", f.Status)
	}
	return q
}

func loanScope(q *gorm.DB, f circulation.LoanFilter) *gorm.DB {
	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}
	if f.MemberID != "" {
		q = q.Where("member_id = ?", f.MemberID)
	}
	if f.CopyID != "" {
		q = q.Where("copy_id = ?", f.CopyID)
	}
	if f.BookID != "" {
		q = q.Where("book_id = ?", f.BookID)
	}
	if len(f.Status) > 0 {
		q = q.Where("status IN ?", f.Status)
	}
	if f.DueBefore != nil {
		q = q.Where("due_date < ?", *f.DueBefore)
	}
	return q
}

func reservationScope(q *gorm.DB, f circulation.ReservationFilter) *gorm.DB {
	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}
	if f.MemberID != "" {
		q = q.Where("member_id = ?", f.MemberID)
	}
	if f.BookID != "" {
		q = q.Where("book_id = ?", f.BookID)
	}
	if f.CopyID != "" {
		q = q.Where("copy_id = ?", f.CopyID)
	}
	if len(f.Status) > 0 {
		q = q.Where("status IN ?", f.Status)
	}
	if f.Unclaimed {
		q = q.Where("loan_id IS NULL")
	}
	if f.PickupBefore != nil {
		q = q.Where("pickup_deadline IS NOT NULL AND pickup_deadline < ?", *f.PickupBefore)
	}
	return q
}

func fineScope(q *gorm.DB, f circulation.FineFilter) *gorm.DB {
	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}
	if f.MemberID != "" {
		q = q.Where("member_id = ?", f.MemberID)
	}
	if f.LoanID != "" {
		q = q.Where("loan_id = ?", f.LoanID)
	}
	if len(f.Type) > 0 {
		q = q.Where("type IN ?", f.Type)
	}
	if len(f.Status) > 0 {
		q = q.Where("status IN ?", f.Status)
	}
	return q
}
