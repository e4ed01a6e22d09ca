package circulation

import (
	"context"
	"errors"
	"time"

	"library_circulation/models"
)

type CheckoutRequest struct {
	MemberID string
	CopyID   string
	// DueDate 可选；为空时为 now + LoanPeriod。
	DueDate *time.Time
}

// Checkout opens a loan for an eligible member on an available copy.
// Loan creation and the copy's move to Borrowed commit together or not at all.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*models.Loan, error) {
	var (
		loan          *models.Loan
		copyBefore    models.BookCopy
		copyAfter     models.BookCopy
		claimed       *models.Reservation
		claimedBefore models.Reservation
	)
	err := s.observe(ctx, "Checkout", func(ctx context.Context) error {
		if err := requireID("member", req.MemberID); err != nil {
			return err
		}
		if err := requireID("book copy", req.CopyID); err != nil {
			return err
		}
		return s.inTx(ctx, func(tx Tx) error {
			now := s.clock()

			// 1) 锁住会员，串行化同一会员的并发借书（在借上限）
			m, err := tx.Members().GetForUpdate(ctx, req.MemberID)
			if err != nil {
				return lookup(err, ReasonMemberNotFound, "member", req.MemberID)
			}
			elig, err := s.evaluate(ctx, tx, m, PurposeBorrow)
			if err != nil {
				return err
			}
			if err := elig.Err(); err != nil {
				return err
			}

			// 2) 锁住副本
			c, err := tx.Copies().GetForUpdate(ctx, req.CopyID)
			if err != nil {
				return lookup(err, ReasonCopyNotFound, "book copy", req.CopyID)
			}
			pickup, err := claimableReservation(ctx, tx, m.ID, c, now)
			if err != nil {
				return err
			}
			if c.Status != models.CopyAvailable && pickup == nil {
				return precondition(ReasonCopyNotAvailable,
					"Book copy %s is not available (status: %s)", c.ID, c.Status)
			}
			var queued *models.Reservation
			if pickup == nil {
				if queued, err = queueTurn(ctx, tx, m.ID, c); err != nil {
					return err
				}
			}
			// 副本状态与 loan 表不一致时拒绝，保证同一副本最多一条未归还 loan
			open, err := copyHasOpenLoans(ctx, tx, c.ID)
			if err != nil {
				return err
			}
			if open {
				return Conflict("book copy "+c.ID+" already has an active loan", nil)
			}

			// 3) 到期日
			due, err := s.resolveDueDate(now, req.DueDate)
			if err != nil {
				return err
			}

			// 4) 新建 loan + 副本置为 Borrowed
			l := &models.Loan{
				ID:       newID(),
				MemberID: m.ID,
				CopyID:   c.ID,
				BookID:   c.BookID,
				LoanDate: now,
				DueDate:  due,
				Status:   models.LoanActive,
			}
			if err := tx.Loans().Add(ctx, l); err != nil {
				return err
			}
			copyBefore = *c
			c.Status = models.CopyBorrowed
			if err := tx.Copies().Update(ctx, c); err != nil {
				return err
			}
			copyAfter = *c
			if pickup != nil {
				pickup.LoanID = &l.ID
				if err := tx.Reservations().Update(ctx, pickup); err != nil {
					return err
				}
			}
			if queued != nil {
				// 排队者直接在架上借到，预约随之兑现
				claimedBefore = *queued
				queued.Status = models.ReservationFulfilled
				copyID, loanID := c.ID, l.ID
				queued.CopyID = &copyID
				queued.LoanID = &loanID
				queued.PickupDeadline = &now
				if err := tx.Reservations().Update(ctx, queued); err != nil {
					return err
				}
				claimed = queued
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
	s.record(ctx, "loan", loan.ID, "checkout", nil, loan)
	s.record(ctx, "book_copy", copyAfter.ID, "status_change", copyBefore, copyAfter)
	if claimed != nil {
		s.record(ctx, "reservation", claimed.ID, "fulfill", claimedBefore, claimed)
	}
	return loan, nil
}

func (s *Service) resolveDueDate(now time.Time, requested *time.Time) (time.Time, error) {
	if requested == nil {
		return now.Add(s.policy.LoanPeriod), nil
	}
	due := requested.UTC()
	if !due.After(now) {
		return time.Time{}, precondition(ReasonInvalidDueDate, "Due date must be in the future")
	}
	if due.After(now.Add(s.policy.MaxDueHorizon)) {
		return time.Time{}, precondition(ReasonInvalidDueDate,
			"Due date cannot be more than %d days from now", int(s.policy.MaxDueHorizon/day))
	}
	return due, nil
}

// claimableReservation 返回该会员在此副本上、尚未过取书期限的已分配预约；
// 只有它能把 Reserved 状态的副本借走。
func claimableReservation(ctx context.Context, tx Tx, memberID string, c *models.BookCopy, now time.Time) (*models.Reservation, error) {
	if c.Status != models.CopyReserved {
		return nil, nil
	}
	r, err := tx.Reservations().First(ctx, ReservationFilter{
		MemberID:  memberID,
		CopyID:    c.ID,
		Status:    []models.ReservationStatus{models.ReservationFulfilled},
		Unclaimed: true,
	})
	if errors.Is(err, ErrNoRecord) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if r.PickupDeadline != nil && now.After(*r.PickupDeadline) {
		return nil, nil
	}
	return r, nil
}

// queueTurn 在架副本先留给排队中的会员：排在借书人之前的 Active 预约数必须少于
// 该书在架副本数。借书人自己在排队时返回其预约。
func queueTurn(ctx context.Context, tx Tx, memberID string, c *models.BookCopy) (*models.Reservation, error) {
	queue, err := tx.Reservations().Find(ctx, ReservationFilter{
		BookID: c.BookID,
		Status: []models.ReservationStatus{models.ReservationActive},
	})
	if err != nil || len(queue) == 0 {
		return nil, err
	}
	ahead, own := len(queue), (*models.Reservation)(nil)
	for i := range queue {
		if queue[i].MemberID == memberID {
			ahead, own = i, &queue[i]
			break
		}
	}
	shelf, err := tx.Copies().Count(ctx, CopyFilter{
		BookID: c.BookID,
		Status: []models.CopyStatus{models.CopyAvailable},
	})
	if err != nil {
		return nil, err
	}
	if int64(ahead) >= shelf {
		return nil, precondition(ReasonReservationConflict,
			"Book copy %s is held for members ahead in the reservation queue", c.ID)
	}
	return own, nil
}

// refreshLoanCount 重算冗余列 ActiveLoanCount（在同一事务内）。
func refreshLoanCount(ctx context.Context, tx Tx, m *models.Member) error {
	n, err := countOpenLoans(ctx, tx, m.ID)
	if err != nil {
		return err
	}
	m.ActiveLoanCount = int(n)
	return nil
}
