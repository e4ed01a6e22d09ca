package db

import (
	"context"

	"gorm.io/gorm"

	"library_circulation/circulation"
	"library_circulation/models"
)

// Store begins gorm transactions on Postgres. Rows read with GetForUpdate stay
// locked until Commit/Rollback.
type Store struct{ DB *gorm.DB }

func NewStore(db *gorm.DB) *Store { return &Store{DB: db} }

func (s *Store) Begin(ctx context.Context) (circulation.Tx, error) {
	tx := s.DB.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, translate(tx.Error)
	}
	return &gormTx{
		db:           tx,
		members:      newRepo[models.Member](tx, memberScope, "id"),
		books:        newRepo[models.Book](tx, bookScope, "id"),
		copies:       newRepo[models.BookCopy](tx, copyScope, "book_id, copy_number"),
		loans:        newRepo[models.Loan](tx, loanScope, "loan_date, id"),
		reservations: newRepo[models.Reservation](tx, reservationScope, "reservation_date, id"),
		fines:        newRepo[models.Fine](tx, fineScope, "issued_at, id"),
	}, nil
}

type gormTx struct {
	db *gorm.DB

	members      *repo[models.Member, circulation.MemberFilter]
	books        *repo[models.Book, circulation.BookFilter]
	copies       *repo[models.BookCopy, circulation.CopyFilter]
	loans        *repo[models.Loan, circulation.LoanFilter]
	reservations *repo[models.Reservation, circulation.ReservationFilter]
	fines        *repo[models.Fine, circulation.FineFilter]
}

func (t *gormTx) Members() circulation.MemberRepository           { return t.members }
func (t *gormTx) Books() circulation.BookRepository               { return t.books }
func (t *gormTx) Copies() circulation.CopyRepository              { return t.copies }
func (t *gormTx) Loans() circulation.LoanRepository               { return t.loans }
func (t *gormTx) Reservations() circulation.ReservationRepository { return t.reservations }
func (t *gormTx) Fines() circulation.FineRepository               { return t.fines }

func (t *gormTx) Commit() error   { return translate(t.db.Commit().Error) }
func (t *gormTx) Rollback() error { return translate(t.db.Rollback().Error) }
