package circulation

import (
	"context"
	"fmt"
	"log/slog"

	"library_circulation/models"
)

// SweepReport summarises one run of a periodic job.
type SweepReport struct {
	Job      string `json:"job"`
	Examined int    `json:"examined"`
	Changed  int    `json:"changed"`
	Failed   int    `json:"failed"`
}

// MarkOverdue moves Active loans past their due date to Overdue and sends one
// reminder per transition. Re-running without changes is a no-op.
func (s *Service) MarkOverdue(ctx context.Context) (SweepReport, error) {
	rep := SweepReport{Job: "overdue"}
	now := s.clock()

	var candidates []models.Loan
	err := s.inTx(ctx, func(tx Tx) error {
		var err error
		candidates, err = tx.Loans().Find(ctx, LoanFilter{
			Status:    []models.LoanStatus{models.LoanActive},
			DueBefore: &now,
		})
		return err
	})
	if err != nil {
		return rep, err
	}

	for _, c := range candidates {
		rep.Examined++
		loan, err := s.markOverdue(ctx, c.ID)
		if err != nil {
			rep.Failed++
			s.log.WarnContext(ctx, "overdue sweep: loan failed", slog.String("loan", c.ID), slog.Any("error", err))
			continue
		}
		if loan == nil {
			continue
		}
		rep.Changed++
		s.notify(ctx, loan.MemberID, NotifyOverdue,
			"Your loan is overdue",
			fmt.Sprintf("Loan %s was due on %s. Please return the book; a fine of %s per day applies.",
				loan.ID, loan.DueDate.Format("2006-01-02"), money(s.policy.DailyRate)))
	}
	s.log.InfoContext(ctx, "sweep finished", slog.String("job", rep.Job),
		slog.Int("examined", rep.Examined), slog.Int("changed", rep.Changed), slog.Int("failed", rep.Failed))
	return rep, nil
}

func (s *Service) markOverdue(ctx context.Context, loanID string) (*models.Loan, error) {
	var loan *models.Loan
	var before models.Loan
	err := s.inTx(ctx, func(tx Tx) error {
		l, err := tx.Loans().GetForUpdate(ctx, loanID)
		if err != nil {
			return lookup(err, ReasonLoanNotFound, "loan", loanID)
		}
		// 加锁后复查：期间可能已归还/续借
		if l.Status != models.LoanActive || !l.DueDate.Before(s.clock()) {
			return nil
		}
		before = *l
		l.Status = models.LoanOverdue
		if err := tx.Loans().Update(ctx, l); err != nil {
			return err
		}
		loan = l
		return nil
	})
	if err != nil || loan == nil {
		return nil, err
	}
	s.record(ctx, "loan", loan.ID, "overdue", before, loan)
	return loan, nil
}

// ExpirePickups expires Fulfilled reservations whose pickup deadline passed
// without a checkout, releases their copies and cascades fulfilment one queue
// entry at a time.
func (s *Service) ExpirePickups(ctx context.Context) (SweepReport, error) {
	rep := SweepReport{Job: "pickups"}
	now := s.clock()

	var candidates []models.Reservation
	err := s.inTx(ctx, func(tx Tx) error {
		var err error
		candidates, err = tx.Reservations().Find(ctx, ReservationFilter{
			Status:       []models.ReservationStatus{models.ReservationFulfilled},
			Unclaimed:    true,
			PickupBefore: &now,
		})
		return err
	})
	if err != nil {
		return rep, err
	}

	for _, r := range candidates {
		rep.Examined++
		changed, err := s.expirePickup(ctx, r.ID)
		if err != nil {
			rep.Failed++
			s.log.WarnContext(ctx, "pickup sweep: reservation failed", slog.String("reservation", r.ID), slog.Any("error", err))
			continue
		}
		if changed {
			rep.Changed++
		}
	}
	s.log.InfoContext(ctx, "sweep finished", slog.String("job", rep.Job),
		slog.Int("examined", rep.Examined), slog.Int("changed", rep.Changed), slog.Int("failed", rep.Failed))
	return rep, nil
}

// FulfillWaiting offers every available copy to its book's queue. Each
// promotion is its own transaction.
func (s *Service) FulfillWaiting(ctx context.Context) (SweepReport, error) {
	rep := SweepReport{Job: "availability"}

	var waiting []models.Reservation
	err := s.inTx(ctx, func(tx Tx) error {
		var err error
		waiting, err = tx.Reservations().Find(ctx, ReservationFilter{
			Status: []models.ReservationStatus{models.ReservationActive},
		})
		return err
	})
	if err != nil {
		return rep, err
	}

	seen := make(map[string]struct{})
	for _, r := range waiting {
		if _, ok := seen[r.BookID]; ok {
			continue
		}
		seen[r.BookID] = struct{}{}
		rep.Examined++
		for {
			res, err := s.Fulfill(ctx, r.BookID)
			if err != nil {
				rep.Failed++
				s.log.WarnContext(ctx, "availability sweep: book failed", slog.String("book", r.BookID), slog.Any("error", err))
				break
			}
			if res == nil {
				break
			}
			rep.Changed++
		}
	}
	s.log.InfoContext(ctx, "sweep finished", slog.String("job", rep.Job),
		slog.Int("examined", rep.Examined), slog.Int("changed", rep.Changed), slog.Int("failed", rep.Failed))
	return rep, nil
}
