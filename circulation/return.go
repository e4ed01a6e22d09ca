package circulation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"library_circulation/models"
)

// Condition is the state of the copy as reported by the person taking it back.
type Condition string

const (
	ConditionGood    Condition = "good"
	ConditionDamaged Condition = "damaged"
	ConditionLost    Condition = "lost"
)

func (c Condition) copyStatus() (models.CopyStatus, bool) {
	switch c {
	case ConditionGood:
		return models.CopyAvailable, true
	case ConditionDamaged:
		return models.CopyDamaged, true
	case ConditionLost:
		return models.CopyLost, true
	}
	return "", false
}

// Return closes an Active or Overdue loan. Late returns create a Pending overdue
// fine and raise the member's balance in the same transaction.
func (s *Service) Return(ctx context.Context, loanID string, condition Condition) (*models.Loan, error) {
	var (
		loan       *models.Loan
		fine       *models.Fine
		loanBefore models.Loan
	)
	err := s.observe(ctx, "Return", func(ctx context.Context) error {
		copyStatus, ok := condition.copyStatus()
		if !ok {
			return precondition(ReasonInvalidCondition, "Unknown return condition %q", condition)
		}
		return s.inTx(ctx, func(tx Tx) error {
			// 先读 loan 拿到 member / copy，再按 member -> copy -> loan 的顺序加锁
			peek, err := tx.Loans().Get(ctx, loanID)
			if err != nil {
				return lookup(err, ReasonLoanNotFound, "loan", loanID)
			}
			m, err := tx.Members().GetForUpdate(ctx, peek.MemberID)
			if err != nil {
				return lookup(err, ReasonMemberNotFound, "member", peek.MemberID)
			}
			c, err := tx.Copies().GetForUpdate(ctx, peek.CopyID)
			if err != nil {
				return lookup(err, ReasonCopyNotFound, "book copy", peek.CopyID)
			}
			l, err := tx.Loans().GetForUpdate(ctx, loanID)
			if err != nil {
				return lookup(err, ReasonLoanNotFound, "loan", loanID)
			}
			if !l.Status.Open() {
				return precondition(ReasonNotReturnable,
					"Loan %s cannot be returned (status: %s)", l.ID, l.Status)
			}
			loanBefore = *l

			now := s.clock()
			l.ReturnDate = &now
			l.Status = models.LoanReturned
			if err := tx.Loans().Update(ctx, l); err != nil {
				return err
			}

			c.Status = copyStatus
			if err := tx.Copies().Update(ctx, c); err != nil {
				return err
			}

			// 逾期：按整天截断计费（不足 24 小时记 0 天）
			if amount := s.policy.OverdueFine(l.DueDate, now); amount.IsPositive() {
				days := DaysOverdue(l.DueDate, now)
				f := &models.Fine{
					ID:       newID(),
					MemberID: m.ID,
					LoanID:   &l.ID,
					Type:     models.FineOverdue,
					Amount:   amount,
					Status:   models.FinePending,
					Notes:    fmt.Sprintf("%d day(s) overdue", days),
					IssuedAt: now,
				}
				if err := tx.Fines().Add(ctx, f); err != nil {
					return err
				}
				m.OutstandingFines = m.OutstandingFines.Add(amount)
				fine = f
			}

			if err := refreshLoanCount(ctx, tx, m); err != nil {
				return err
			}
			if err := tx.Members().Update(ctx, m); err != nil {
				return err
			}
			loan = l
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, "loan", loan.ID, "return", loanBefore, loan)
	if fine != nil {
		s.record(ctx, "fine", fine.ID, "create", nil, fine)
	}
	if condition == ConditionGood {
		s.offerToQueue(ctx, loan.BookID)
	}
	return loan, nil
}

// ReportLost marks a borrowed copy as lost: the loan becomes Lost, the copy Lost,
// and a Pending replacement fine is raised when fee is positive.
func (s *Service) ReportLost(ctx context.Context, loanID string, fee decimal.Decimal) (*models.Loan, error) {
	var (
		loan       *models.Loan
		fine       *models.Fine
		loanBefore models.Loan
	)
	err := s.observe(ctx, "ReportLost", func(ctx context.Context) error {
		if fee.IsNegative() {
			return precondition(ReasonInvalidAmount, "Replacement fee cannot be negative")
		}
		return s.inTx(ctx, func(tx Tx) error {
			peek, err := tx.Loans().Get(ctx, loanID)
			if err != nil {
				return lookup(err, ReasonLoanNotFound, "loan", loanID)
			}
			m, err := tx.Members().GetForUpdate(ctx, peek.MemberID)
			if err != nil {
				return lookup(err, ReasonMemberNotFound, "member", peek.MemberID)
			}
			c, err := tx.Copies().GetForUpdate(ctx, peek.CopyID)
			if err != nil {
				return lookup(err, ReasonCopyNotFound, "book copy", peek.CopyID)
			}
			l, err := tx.Loans().GetForUpdate(ctx, loanID)
			if err != nil {
				return lookup(err, ReasonLoanNotFound, "loan", loanID)
			}
			if !l.Status.Open() {
				return precondition(ReasonNotActive, "Loan %s is not open (status: %s)", l.ID, l.Status)
			}
			loanBefore = *l

			now := s.clock()
			l.Status = models.LoanLost
			if err := tx.Loans().Update(ctx, l); err != nil {
				return err
			}
			c.Status = models.CopyLost
			if err := tx.Copies().Update(ctx, c); err != nil {
				return err
			}
			if fee.IsPositive() {
				f := &models.Fine{
					ID:       newID(),
					MemberID: m.ID,
					LoanID:   &l.ID,
					Type:     models.FineLost,
					Amount:   fee,
					Status:   models.FinePending,
					Notes:    "replacement fee",
					IssuedAt: now,
				}
				if err := tx.Fines().Add(ctx, f); err != nil {
					return err
				}
				m.OutstandingFines = m.OutstandingFines.Add(fee)
				fine = f
			}
			if err := refreshLoanCount(ctx, tx, m); err != nil {
				return err
			}
			if err := tx.Members().Update(ctx, m); err != nil {
				return err
			}
			loan = l
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, "loan", loan.ID, "report_lost", loanBefore, loan)
	if fine != nil {
		s.record(ctx, "fine", fine.ID, "create", nil, fine)
	}
	return loan, nil
}

// offerToQueue 副本变为可借后交给预约队列；失败不影响已提交的归还，可由可用性巡检补上。
func (s *Service) offerToQueue(ctx context.Context, bookID string) {
	if _, err := s.Fulfill(ctx, bookID); err != nil {
		s.log.WarnContext(ctx, "fulfill after copy became available failed",
			slog.String("book", bookID), slog.Any("error", err))
	}
}
