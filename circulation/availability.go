package circulation

import (
	"context"

	"library_circulation/models"
)

// CopyAvailable reports whether a specific copy can be lent right now.
func (s *Service) CopyAvailable(ctx context.Context, copyID string) (bool, error) {
	var ok bool
	err := s.inTx(ctx, func(tx Tx) error {
		c, err := tx.Copies().Get(ctx, copyID)
		if err != nil {
			return lookup(err, ReasonCopyNotFound, "book copy", copyID)
		}
		ok = c.Status == models.CopyAvailable
		return nil
	})
	return ok, err
}

// BookAvailable reports whether at least one copy of the book can be lent.
func (s *Service) BookAvailable(ctx context.Context, bookID string) (bool, error) {
	var ok bool
	err := s.inTx(ctx, func(tx Tx) error {
		if _, err := tx.Books().Get(ctx, bookID); err != nil {
			return lookup(err, ReasonBookNotFound, "book", bookID)
		}
		var err error
		ok, err = bookHasAvailableCopy(ctx, tx, bookID)
		return err
	})
	return ok, err
}

// 以下是借阅规则的唯一判定来源，checkout / renew / 副本状态维护 / 删书共用。

func bookHasAvailableCopy(ctx context.Context, tx Tx, bookID string) (bool, error) {
	return tx.Copies().Exists(ctx, CopyFilter{BookID: bookID, Status: []models.CopyStatus{models.CopyAvailable}})
}

func copyHasOpenLoans(ctx context.Context, tx Tx, copyID string) (bool, error) {
	return tx.Loans().Exists(ctx, LoanFilter{CopyID: copyID, Status: openLoanStatuses})
}

func bookHasOpenLoans(ctx context.Context, tx Tx, bookID string) (bool, error) {
	return tx.Loans().Exists(ctx, LoanFilter{BookID: bookID, Status: openLoanStatuses})
}

func bookHasActiveReservations(ctx context.Context, tx Tx, bookID string) (bool, error) {
	return tx.Reservations().Exists(ctx, ReservationFilter{
		BookID: bookID,
		Status: []models.ReservationStatus{models.ReservationActive},
	})
}

// bookHasPendingPickup 有已分配副本但尚未取书的预约。
func bookHasPendingPickup(ctx context.Context, tx Tx, bookID string) (bool, error) {
	return tx.Reservations().Exists(ctx, ReservationFilter{
		BookID:    bookID,
		Status:    []models.ReservationStatus{models.ReservationFulfilled},
		Unclaimed: true,
	})
}
