package circulation

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"library_circulation/models"
)

// Drift describes a member whose cached counters disagree with the ledger.
type Drift struct {
	MemberID    string          `json:"memberId"`
	StoredFines decimal.Decimal `json:"storedFines"`
	ActualFines decimal.Decimal `json:"actualFines"`
	StoredLoans int             `json:"storedLoans"`
	ActualLoans int             `json:"actualLoans"`
	Repaired    bool            `json:"repaired"`
}

// Reconcile recomputes outstanding fines (sum of Pending fines) and active loan
// count for every member. With repair the cached columns are rewritten.
func (s *Service) Reconcile(ctx context.Context, repair bool) ([]Drift, error) {
	var members []models.Member
	err := s.inTx(ctx, func(tx Tx) error {
		var err error
		members, err = tx.Members().Find(ctx, MemberFilter{})
		return err
	})
	if err != nil {
		return nil, err
	}

	var drifts []Drift
	for _, m := range members {
		d, err := s.reconcileMember(ctx, m.ID, repair)
		if err != nil {
			return drifts, err
		}
		if d != nil {
			drifts = append(drifts, *d)
		}
	}
	if len(drifts) > 0 {
		s.log.WarnContext(ctx, "member counters drifted", slog.Int("members", len(drifts)), slog.Bool("repaired", repair))
	}
	return drifts, nil
}

func (s *Service) reconcileMember(ctx context.Context, memberID string, repair bool) (*Drift, error) {
	var drift *Drift
	err := s.inTx(ctx, func(tx Tx) error {
		m, err := tx.Members().GetForUpdate(ctx, memberID)
		if err != nil {
			return lookup(err, ReasonMemberNotFound, "member", memberID)
		}
		fines, loans, err := ledgerTotals(ctx, tx, memberID)
		if err != nil {
			return err
		}
		if fines.Equal(m.OutstandingFines) && loans == m.ActiveLoanCount {
			return nil
		}
		drift = &Drift{
			MemberID:    m.ID,
			StoredFines: m.OutstandingFines,
			ActualFines: fines,
			StoredLoans: m.ActiveLoanCount,
			ActualLoans: loans,
		}
		if !repair {
			return nil
		}
		m.OutstandingFines = fines
		m.ActiveLoanCount = loans
		if err := tx.Members().Update(ctx, m); err != nil {
			return err
		}
		drift.Repaired = true
		return nil
	})
	return drift, err
}

// ledgerTotals 从明细重算：Pending 罚款之和、Active/Overdue loan 数。
func ledgerTotals(ctx context.Context, tx Tx, memberID string) (decimal.Decimal, int, error) {
	pending, err := tx.Fines().Find(ctx, FineFilter{
		MemberID: memberID,
		Status:   []models.FineStatus{models.FinePending},
	})
	if err != nil {
		return decimal.Zero, 0, err
	}
	sum := decimal.Zero
	for _, f := range pending {
		sum = sum.Add(f.Amount)
	}
	n, err := countOpenLoans(ctx, tx, memberID)
	if err != nil {
		return decimal.Zero, 0, err
	}
	return sum, int(n), nil
}
