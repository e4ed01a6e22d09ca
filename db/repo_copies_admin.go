package db

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"library_circulation/models"
)

// AdminCopyRow is one copy with its title and current open loan, if any.
type AdminCopyRow struct {
	ID         string            `json:"id"`
	BookID     string            `json:"bookId"`
	Title      string            `json:"title"`
	ISBN       string            `json:"isbn"`
	CopyNumber int               `json:"copyNumber"`
	Status     models.CopyStatus `json:"status"`
	UpdatedAt  time.Time         `json:"updatedAt"`

	// Current open loan (nullable)
	LoanID       *string    `json:"loanId,omitempty"`
	BorrowerID   *string    `json:"borrowerId,omitempty"`
	BorrowerName *string    `json:"borrowerName,omitempty"`
	LoanDate     *time.Time `json:"loanDate,omitempty"`
	DueDate      *time.Time `json:"dueDate,omitempty"`
	Overdue      bool       `json:"overdue"` // 由 SQL 计算
}

type AdminCopiesQuery struct {
	Q      string // 模糊搜索：title/isbn
	Status string // "", "on_loan", "available", "overdue", "out_of_service"
	Page   int
	Size   int
}

type PagedAdminCopies struct {
	Total int64          `json:"total"`
	Items []AdminCopyRow `json:"items"`
}

// ListCopiesWithCurrentLoan is the desk overview: every copy joined with the
// borrower of its open loan.
func (r *Repo) ListCopiesWithCurrentLoan(ctx context.Context, q AdminCopiesQuery) (*PagedAdminCopies, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Size <= 0 || q.Size > 200 {
		q.Size = 20
	}
	offset := (q.Page - 1) * q.Size

	db := r.DB.WithContext(ctx)

	// 子查询：每个副本当前未归还的 loan（部分唯一索引保证最多一条）
	sub := db.
		Table(models.LoanTable+" l").
		Select("l.id, l.copy_id, l.member_id, l.loan_date, l.due_date").
		Where("l.status IN ?", []models.LoanStatus{models.LoanActive, models.LoanOverdue})

	qry := db.
		Table(models.CopyTable+" c").
		Joins("JOIN "+models.BookTable+" b ON b.id = c.book_id").
		Joins("LEFT JOIN (?) AS ol ON ol.copy_id = c.id", sub).
		Joins("LEFT JOIN " + models.MemberTable + " m ON m.id = ol.member_id")

	if s := strings.TrimSpace(q.Q); s != "" {
		pat := "%" + strings.ToLower(s) + "%"
		qry = qry.Where("LOWER(b.title) LIKE ? OR LOWER(b.isbn) LIKE ?", pat, pat)
	}
	switch q.Status {
	case "on_loan":
		qry = qry.Where("ol.id IS NOT NULL")
	case "available":
		qry = qry.Where("c.status = ?", models.CopyAvailable)
	case "overdue":
		qry = qry.Where("ol.due_date < NOW()")
	case "out_of_service":
		qry = qry.Where("c.status IN ?", []models.CopyStatus{models.CopyLost, models.CopyDamaged})
	}

	// 复用同一组 join/where 做计数和分页
	qry = qry.Session(&gorm.Session{})

	var total int64
	if err := qry.Count(&total).Error; err != nil {
		return nil, translate(err)
	}

	var rows []AdminCopyRow
	if err := qry.
		Select(`
			c.id, c.book_id, b.title, b.isbn, c.copy_number, c.status, c.updated_at,
			ol.id        AS loan_id,
			ol.member_id AS borrower_id,
			m.name       AS borrower_name,
			ol.loan_date,
			ol.due_date,
			CASE WHEN ol.due_date IS NOT NULL AND ol.due_date < NOW() THEN TRUE ELSE FALSE END AS overdue
		`).
		Order("b.title, c.copy_number").
		Offset(offset).
		Limit(q.Size).
		Scan(&rows).Error; err != nil {
		return nil, translate(err)
	}
	return &PagedAdminCopies{Total: total, Items: rows}, nil
}
