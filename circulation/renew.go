package circulation

import (
	"context"
	"time"

	"library_circulation/models"
)

// Renew extends an Active loan's due date. Only the due date changes.
// Without newDueDate the loan is extended by one loan period.
func (s *Service) Renew(ctx context.Context, loanID string, newDueDate *time.Time) (*models.Loan, error) {
	var loan, before *models.Loan
	err := s.observe(ctx, "Renew", func(ctx context.Context) error {
		return s.inTx(ctx, func(tx Tx) error {
			l, err := tx.Loans().GetForUpdate(ctx, loanID)
			if err != nil {
				return lookup(err, ReasonLoanNotFound, "loan", loanID)
			}
			if l.Status != models.LoanActive {
				return precondition(ReasonNotActive, "Loan %s is not active (status: %s)", l.ID, l.Status)
			}

			now := s.clock()
			due := l.DueDate.Add(s.policy.LoanPeriod)
			if newDueDate != nil {
				due = newDueDate.UTC()
			}
			if !due.After(l.DueDate) {
				return precondition(ReasonInvalidExtension, "New due date must be after the current due date")
			}
			if due.After(now.Add(s.policy.MaxRenewalHorizon)) {
				return precondition(ReasonExtensionLimitExceeded,
					"New due date cannot be more than %d days from now", int(s.policy.MaxRenewalHorizon/day))
			}

			m, err := tx.Members().Get(ctx, l.MemberID)
			if err != nil {
				return lookup(err, ReasonMemberNotFound, "member", l.MemberID)
			}
			elig, err := s.evaluate(ctx, tx, m, PurposeRenew)
			if err != nil {
				return err
			}
			if err := elig.Err(); err != nil {
				return err
			}

			waiting, err := bookHasActiveReservations(ctx, tx, l.BookID)
			if err != nil {
				return err
			}
			if waiting {
				return precondition(ReasonReservationConflict,
					"Cannot renew loan %s: another member is waiting for this title", l.ID)
			}

			prev := *l
			before = &prev
			l.DueDate = due
			l.RenewCount++
			if err := tx.Loans().Update(ctx, l); err != nil {
				return err
			}
			loan = l
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, "loan", loan.ID, "renew", before, loan)
	return loan, nil
}
