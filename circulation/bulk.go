package circulation

import (
	"context"
	"time"

	"library_circulation/models"
)

// BulkResult is the per-copy outcome of a bulk operation. Each item runs in its
// own transaction; a failure on one copy never rolls back another.
type BulkResult struct {
	ID   string       `json:"id"`
	Loan *models.Loan `json:"loan,omitempty"`
	Err  error        `json:"-"`
}

func (r BulkResult) OK() bool { return r.Err == nil }

func (s *Service) BulkCheckout(ctx context.Context, memberID string, copyIDs []string, dueDate *time.Time) []BulkResult {
	out := make([]BulkResult, 0, len(copyIDs))
	for _, id := range copyIDs {
		loan, err := s.Checkout(ctx, CheckoutRequest{MemberID: memberID, CopyID: id, DueDate: dueDate})
		out = append(out, BulkResult{ID: id, Loan: loan, Err: err})
	}
	return out
}

type ReturnItem struct {
	LoanID    string    `json:"loanId"`
	Condition Condition `json:"condition"`
}

func (s *Service) BulkReturn(ctx context.Context, items []ReturnItem) []BulkResult {
	out := make([]BulkResult, 0, len(items))
	for _, it := range items {
		cond := it.Condition
		if cond == "" {
			cond = ConditionGood
		}
		loan, err := s.Return(ctx, it.LoanID, cond)
		out = append(out, BulkResult{ID: it.LoanID, Loan: loan, Err: err})
	}
	return out
}
