package circulation

import (
	"context"
	"strings"

	"library_circulation/models"
)

// Purpose selects which eligibility rules apply.
type Purpose string

const (
	PurposeBorrow  Purpose = "borrow"
	PurposeRenew   Purpose = "renew"
	PurposeReserve Purpose = "reserve"
)

type Violation struct {
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
}

// Eligibility is the structured result of evaluating a member. Business rule
// failures are reported here, never as errors.
type Eligibility struct {
	MemberID   string      `json:"memberId"`
	Purpose    Purpose     `json:"purpose"`
	Eligible   bool        `json:"eligible"`
	Violations []Violation `json:"violations,omitempty"`
}

// Err converts a failed evaluation into a PreconditionFailed error carrying the
// first violated rule; the message lists every violation.
func (e Eligibility) Err() error {
	if e.Eligible || len(e.Violations) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Message)
	}
	return &Error{Kind: KindPrecondition, Reason: e.Violations[0].Reason, Message: strings.Join(msgs, "; ")}
}

// Eligibility evaluates whether a member may borrow, renew or reserve right now.
func (s *Service) Eligibility(ctx context.Context, memberID string, purpose Purpose) (Eligibility, error) {
	var out Eligibility
	err := s.observe(ctx, "Eligibility", func(ctx context.Context) error {
		return s.inTx(ctx, func(tx Tx) error {
			m, err := tx.Members().Get(ctx, memberID)
			if err != nil {
				return lookup(err, ReasonMemberNotFound, "member", memberID)
			}
			out, err = s.evaluate(ctx, tx, m, purpose)
			return err
		})
	})
	return out, err
}

// evaluate 按顺序检查：会员状态 -> 罚款上限 -> 在借数量。
// 在借数量直接数 Active/Overdue 的 loan，不信任 member 上的冗余计数。
func (s *Service) evaluate(ctx context.Context, tx Tx, m *models.Member, purpose Purpose) (Eligibility, error) {
	res := Eligibility{MemberID: m.ID, Purpose: purpose}

	if m.Status != models.MemberActive {
		res.Violations = append(res.Violations, Violation{
			Reason:  ReasonMemberNotActive,
			Message: "Member " + m.ID + " is not active (status: " + string(m.Status) + ")",
		})
	}

	if purpose == PurposeBorrow || purpose == PurposeReserve {
		if m.OutstandingFines.GreaterThan(s.policy.FineCeiling) {
			res.Violations = append(res.Violations, Violation{
				Reason: ReasonExcessiveFines,
				Message: "Member has outstanding fines of " + money(m.OutstandingFines) +
					", exceeding the " + money(s.policy.FineCeiling) + " limit",
			})
		}
	}

	if purpose == PurposeBorrow {
		n, err := countOpenLoans(ctx, tx, m.ID)
		if err != nil {
			return res, err
		}
		if n >= int64(s.policy.MaxActiveLoans) {
			res.Violations = append(res.Violations, Violation{
				Reason:  ReasonLoanLimitReached,
				Message: "Member has reached the maximum number of active loans",
			})
		}
	}

	res.Eligible = len(res.Violations) == 0
	return res, nil
}

func countOpenLoans(ctx context.Context, tx Tx, memberID string) (int64, error) {
	return tx.Loans().Count(ctx, LoanFilter{MemberID: memberID, Status: openLoanStatuses})
}
