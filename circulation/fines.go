package circulation

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"library_circulation/models"
)

// CalculateFine returns what the loan owes for lateness: the return date is used
// for closed loans, the current time for open ones.
func (s *Service) CalculateFine(ctx context.Context, loanID string) (decimal.Decimal, error) {
	amount := decimal.Zero
	err := s.observe(ctx, "CalculateFine", func(ctx context.Context) error {
		return s.inTx(ctx, func(tx Tx) error {
			l, err := tx.Loans().Get(ctx, loanID)
			if err != nil {
				return lookup(err, ReasonLoanNotFound, "loan", loanID)
			}
			end := s.clock()
			if l.ReturnDate != nil {
				end = *l.ReturnDate
			}
			amount = s.policy.OverdueFine(l.DueDate, end)
			return nil
		})
	})
	return amount, err
}

type PayRequest struct {
	FineID    string
	Amount    decimal.Decimal
	Method    string
	Reference string
}

// PayFine settles a Pending fine in full; partial payments are rejected.
func (s *Service) PayFine(ctx context.Context, req PayRequest) (*models.Fine, error) {
	return s.settle(ctx, "PayFine", req.FineID, nil, func(f *models.Fine) error {
		if !req.Amount.IsPositive() {
			return precondition(ReasonInvalidAmount, "Payment amount must be greater than zero")
		}
		if !req.Amount.Equal(f.Amount) {
			return precondition(ReasonAmountMismatch,
				"Payment of %s does not match the outstanding fine amount of %s", money(req.Amount), money(f.Amount))
		}
		method := strings.TrimSpace(req.Method)
		if method == "" {
			return precondition(ReasonInvalidInput, "Payment method is required")
		}
		now := s.clock()
		f.Status = models.FinePaid
		f.PaidAt = &now
		f.PaymentMethod = method
		f.PaymentReference = strings.TrimSpace(req.Reference)
		return nil
	}, "pay")
}

type WaiveRequest struct {
	FineID  string
	StaffID string
	Reason  string
}

// WaiveFine forgives a Pending fine with staff attribution and a reason.
func (s *Service) WaiveFine(ctx context.Context, req WaiveRequest) (*models.Fine, error) {
	reason := strings.TrimSpace(req.Reason)
	check := func() error {
		if reason == "" {
			return precondition(ReasonReasonRequired, "A reason is required to waive a fine")
		}
		if strings.TrimSpace(req.StaffID) == "" {
			return precondition(ReasonInvalidInput, "Staff id is required to waive a fine")
		}
		return nil
	}
	return s.settle(ctx, "WaiveFine", req.FineID, check, func(f *models.Fine) error {
		now := s.clock()
		f.Status = models.FineWaived
		f.WaivedAt = &now
		f.WaivedBy = strings.TrimSpace(req.StaffID)
		f.WaiverReason = reason
		return nil
	}, "waive")
}

// settle 支付/减免共用：锁 member -> 锁 fine -> 校验 Pending -> apply -> 扣减余额（不低于 0）。
func (s *Service) settle(ctx context.Context, op, fineID string, check func() error, apply func(f *models.Fine) error, action string) (*models.Fine, error) {
	var fine, before *models.Fine
	err := s.observe(ctx, op, func(ctx context.Context) error {
		if check != nil {
			if err := check(); err != nil {
				return err
			}
		}
		return s.inTx(ctx, func(tx Tx) error {
			peek, err := tx.Fines().Get(ctx, fineID)
			if err != nil {
				return lookup(err, ReasonFineNotFound, "fine", fineID)
			}
			m, err := tx.Members().GetForUpdate(ctx, peek.MemberID)
			if err != nil {
				return lookup(err, ReasonMemberNotFound, "member", peek.MemberID)
			}
			f, err := tx.Fines().GetForUpdate(ctx, fineID)
			if err != nil {
				return lookup(err, ReasonFineNotFound, "fine", fineID)
			}
			if f.Status != models.FinePending {
				return precondition(ReasonAlreadySettled, "Fine %s is already %s", f.ID, f.Status)
			}
			prev := *f
			before = &prev
			if err := apply(f); err != nil {
				return err
			}
			if err := tx.Fines().Update(ctx, f); err != nil {
				return err
			}
			s.debit(ctx, m, f.Amount)
			if err := tx.Members().Update(ctx, m); err != nil {
				return err
			}
			fine = f
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, "fine", fine.ID, action, before, fine)
	return fine, nil
}

// debit 扣减会员未缴罚款；会变成负数时钳到 0 并告警，不中断当前操作。
func (s *Service) debit(ctx context.Context, m *models.Member, amount decimal.Decimal) {
	next := m.OutstandingFines.Sub(amount)
	if next.IsNegative() {
		s.warnInconsistency(ctx, "outstanding fines would go negative; clamped to zero",
			slog.String("member", m.ID),
			slog.String("balance", m.OutstandingFines.StringFixed(2)),
			slog.String("amount", amount.StringFixed(2)))
		next = decimal.Zero
	}
	m.OutstandingFines = next
}

type AssessRequest struct {
	MemberID string
	LoanID   string
	Type     models.FineType
	Amount   decimal.Decimal
	Notes    string
}

// AssessFine records a staff-issued Lost or Damage fine.
// Overdue fines are only ever produced by Return.
func (s *Service) AssessFine(ctx context.Context, req AssessRequest) (*models.Fine, error) {
	var fine *models.Fine
	err := s.observe(ctx, "AssessFine", func(ctx context.Context) error {
		if req.Type != models.FineLost && req.Type != models.FineDamage {
			return precondition(ReasonInvalidFineType, "Fine type must be lost or damage, got %q", req.Type)
		}
		if !req.Amount.IsPositive() {
			return precondition(ReasonInvalidAmount, "Fine amount must be greater than zero")
		}
		return s.inTx(ctx, func(tx Tx) error {
			m, err := tx.Members().GetForUpdate(ctx, req.MemberID)
			if err != nil {
				return lookup(err, ReasonMemberNotFound, "member", req.MemberID)
			}
			var loanID *string
			if req.LoanID != "" {
				l, err := tx.Loans().Get(ctx, req.LoanID)
				if err != nil {
					return lookup(err, ReasonLoanNotFound, "loan", req.LoanID)
				}
				if l.MemberID != m.ID {
					return precondition(ReasonInvalidInput, "Loan %s does not belong to member %s", l.ID, m.ID)
				}
				loanID = &l.ID
			}
			f := &models.Fine{
				ID:       newID(),
				MemberID: m.ID,
				LoanID:   loanID,
				Type:     req.Type,
				Amount:   req.Amount.Round(2),
				Status:   models.FinePending,
				Notes:    strings.TrimSpace(req.Notes),
				IssuedAt: s.clock(),
			}
			if err := tx.Fines().Add(ctx, f); err != nil {
				return err
			}
			m.OutstandingFines = m.OutstandingFines.Add(f.Amount)
			if err := tx.Members().Update(ctx, m); err != nil {
				return err
			}
			fine = f
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, "fine", fine.ID, "assess", nil, fine)
	return fine, nil
}

// MemberFines pages through a member's fines, optionally by status.
func (s *Service) MemberFines(ctx context.Context, memberID string, status []models.FineStatus, page PageRequest) (Page[models.Fine], error) {
	var out Page[models.Fine]
	err := s.inTx(ctx, func(tx Tx) error {
		if _, err := tx.Members().Get(ctx, memberID); err != nil {
			return lookup(err, ReasonMemberNotFound, "member", memberID)
		}
		var err error
		out, err = tx.Fines().List(ctx, FineFilter{MemberID: memberID, Status: status}, page)
		return err
	})
	return out, err
}
