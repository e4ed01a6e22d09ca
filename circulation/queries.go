package circulation

import (
	"context"

	"library_circulation/models"
)

func (s *Service) GetMember(ctx context.Context, memberID string) (*models.Member, error) {
	var m *models.Member
	err := s.inTx(ctx, func(tx Tx) error {
		var err error
		m, err = tx.Members().Get(ctx, memberID)
		if err != nil {
			return lookup(err, ReasonMemberNotFound, "member", memberID)
		}
		return nil
	})
	return m, err
}

func (s *Service) ListMembers(ctx context.Context, filter MemberFilter, page PageRequest) (Page[models.Member], error) {
	var out Page[models.Member]
	err := s.inTx(ctx, func(tx Tx) error {
		var err error
		out, err = tx.Members().List(ctx, filter, page)
		return err
	})
	return out, err
}

func (s *Service) GetLoan(ctx context.Context, loanID string) (*models.Loan, error) {
	var l *models.Loan
	err := s.inTx(ctx, func(tx Tx) error {
		var err error
		l, err = tx.Loans().Get(ctx, loanID)
		if err != nil {
			return lookup(err, ReasonLoanNotFound, "loan", loanID)
		}
		return nil
	})
	return l, err
}

// ListLoans pages loans ordered by loan date.
func (s *Service) ListLoans(ctx context.Context, filter LoanFilter, page PageRequest) (Page[models.Loan], error) {
	var out Page[models.Loan]
	err := s.inTx(ctx, func(tx Tx) error {
		var err error
		out, err = tx.Loans().List(ctx, filter, page)
		return err
	})
	return out, err
}

// BookDetail is a title with its copies and queue length.
type BookDetail struct {
	Book      models.Book       `json:"book"`
	Copies    []models.BookCopy `json:"copies"`
	Available int               `json:"available"`
	Queue     int64             `json:"queue"`
}

func (s *Service) GetBook(ctx context.Context, bookID string) (*BookDetail, error) {
	var out *BookDetail
	err := s.inTx(ctx, func(tx Tx) error {
		b, err := tx.Books().Get(ctx, bookID)
		if err != nil {
			return lookup(err, ReasonBookNotFound, "book", bookID)
		}
		copies, err := tx.Copies().Find(ctx, CopyFilter{BookID: b.ID})
		if err != nil {
			return err
		}
		queue, err := tx.Reservations().Count(ctx, ReservationFilter{
			BookID: b.ID,
			Status: []models.ReservationStatus{models.ReservationActive},
		})
		if err != nil {
			return err
		}
		d := &BookDetail{Book: *b, Copies: copies, Queue: queue}
		for _, c := range copies {
			if c.Status == models.CopyAvailable {
				d.Available++
			}
		}
		out = d
		return nil
	})
	return out, err
}

func (s *Service) ListBooks(ctx context.Context, filter BookFilter, page PageRequest) (Page[models.Book], error) {
	var out Page[models.Book]
	err := s.inTx(ctx, func(tx Tx) error {
		var err error
		out, err = tx.Books().List(ctx, filter, page)
		return err
	})
	return out, err
}

func (s *Service) GetReservation(ctx context.Context, reservationID string) (*models.Reservation, error) {
	var r *models.Reservation
	err := s.inTx(ctx, func(tx Tx) error {
		var err error
		r, err = tx.Reservations().Get(ctx, reservationID)
		if err != nil {
			return lookup(err, ReasonReservationNotFound, "reservation", reservationID)
		}
		return nil
	})
	return r, err
}
