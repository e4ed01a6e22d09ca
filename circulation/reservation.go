package circulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"library_circulation/models"
)

type ReserveRequest struct {
	MemberID string
	BookID   string
	Notes    string
}

// Reserve appends the member to the tail of the book's FIFO queue.
// The book row is locked so concurrent reservations serialise on the tail.
func (s *Service) Reserve(ctx context.Context, req ReserveRequest) (*models.Reservation, error) {
	var res *models.Reservation
	err := s.observe(ctx, "Reserve", func(ctx context.Context) error {
		if err := requireID("member", req.MemberID); err != nil {
			return err
		}
		if err := requireID("book", req.BookID); err != nil {
			return err
		}
		return s.inTx(ctx, func(tx Tx) error {
			if _, err := tx.Books().GetForUpdate(ctx, req.BookID); err != nil {
				return lookup(err, ReasonBookNotFound, "book", req.BookID)
			}
			m, err := tx.Members().Get(ctx, req.MemberID)
			if err != nil {
				return lookup(err, ReasonMemberNotFound, "member", req.MemberID)
			}
			elig, err := s.evaluate(ctx, tx, m, PurposeReserve)
			if err != nil {
				return err
			}
			if err := elig.Err(); err != nil {
				return err
			}

			dup, err := tx.Reservations().Exists(ctx, ReservationFilter{
				MemberID: m.ID,
				BookID:   req.BookID,
				Status:   []models.ReservationStatus{models.ReservationActive},
			})
			if err != nil {
				return err
			}
			if dup {
				return precondition(ReasonDuplicateReservation,
					"Member already has an active reservation for book %s", req.BookID)
			}

			r := &models.Reservation{
				ID:              newID(),
				MemberID:        m.ID,
				BookID:          req.BookID,
				ReservationDate: s.clock(),
				Status:          models.ReservationActive,
				Notes:           strings.TrimSpace(req.Notes),
			}
			if err := tx.Reservations().Add(ctx, r); err != nil {
				return err
			}
			res = r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, "reservation", res.ID, "reserve", nil, res)
	return res, nil
}

// Cancel cancels an Active reservation. Staff cancellations need a reason.
// Remaining queue entries keep their relative order.
func (s *Service) Cancel(ctx context.Context, reservationID string, staffInitiated bool, reason string) (*models.Reservation, error) {
	var res, before *models.Reservation
	err := s.observe(ctx, "Cancel", func(ctx context.Context) error {
		return s.inTx(ctx, func(tx Tx) error {
			r, err := tx.Reservations().GetForUpdate(ctx, reservationID)
			if err != nil {
				return lookup(err, ReasonReservationNotFound, "reservation", reservationID)
			}
			if r.Status != models.ReservationActive {
				return precondition(ReasonNotActive, "Reservation %s is not active (status: %s)", r.ID, r.Status)
			}
			reason = strings.TrimSpace(reason)
			if staffInitiated && reason == "" {
				return precondition(ReasonReasonRequired, "A reason is required when staff cancel a reservation")
			}
			prev := *r
			before = &prev

			r.Status = models.ReservationCancelled
			r.CancelReason = reason
			r.CancelledBy = "member"
			if staffInitiated {
				r.CancelledBy = "staff"
			}
			if err := tx.Reservations().Update(ctx, r); err != nil {
				return err
			}
			res = r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, "reservation", res.ID, "cancel", before, res)
	return res, nil
}

// Fulfill assigns an available copy of the book to the head of its queue.
// It returns nil when the queue is empty or no copy is available.
// The book row lock guarantees one promotion per available copy.
func (s *Service) Fulfill(ctx context.Context, bookID string) (*models.Reservation, error) {
	var (
		res    *models.Reservation
		before models.Reservation
		title  string
	)
	err := s.observe(ctx, "Fulfill", func(ctx context.Context) error {
		return s.inTx(ctx, func(tx Tx) error {
			book, err := tx.Books().GetForUpdate(ctx, bookID)
			if err != nil {
				return lookup(err, ReasonBookNotFound, "book", bookID)
			}
			title = book.Title

			head, err := tx.Reservations().First(ctx, ReservationFilter{
				BookID: bookID,
				Status: []models.ReservationStatus{models.ReservationActive},
			})
			if errors.Is(err, ErrNoRecord) {
				return nil
			}
			if err != nil {
				return err
			}
			candidate, err := tx.Copies().First(ctx, CopyFilter{
				BookID: bookID,
				Status: []models.CopyStatus{models.CopyAvailable},
			})
			if errors.Is(err, ErrNoRecord) {
				return nil
			}
			if err != nil {
				return err
			}

			// 加锁后复查，防止与借出等操作竞争同一副本
			c, err := tx.Copies().GetForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if c.Status != models.CopyAvailable {
				return Conflict("book copy "+c.ID+" was claimed concurrently", nil)
			}
			r, err := tx.Reservations().GetForUpdate(ctx, head.ID)
			if err != nil {
				return err
			}
			if r.Status != models.ReservationActive {
				return Conflict("reservation "+r.ID+" changed concurrently", nil)
			}
			before = *r

			now := s.clock()
			deadline := now.Add(s.policy.PickupWindow)
			c.Status = models.CopyReserved
			if err := tx.Copies().Update(ctx, c); err != nil {
				return err
			}
			copyID := c.ID
			r.CopyID = &copyID
			r.Status = models.ReservationFulfilled
			r.PickupDeadline = &deadline
			if err := tx.Reservations().Update(ctx, r); err != nil {
				return err
			}
			res = r
			return nil
		})
	})
	if err != nil || res == nil {
		return nil, err
	}

	s.record(ctx, "reservation", res.ID, "fulfill", before, res)
	s.notify(ctx, res.MemberID, NotifyReservationAvailable,
		"Your reserved book is ready for pickup",
		fmt.Sprintf("%q is being held for you until %s.", title, res.PickupDeadline.Format("2006-01-02 15:04 MST")))
	return res, nil
}

// expirePickup 处理一条过期未取的预约：Expired + 副本回到 Available，然后为下一位分配。
// 返回 true 表示本次确实发生了状态变化。
func (s *Service) expirePickup(ctx context.Context, reservationID string) (bool, error) {
	var (
		res    *models.Reservation
		before models.Reservation
	)
	err := s.inTx(ctx, func(tx Tx) error {
		peek, err := tx.Reservations().Get(ctx, reservationID)
		if err != nil {
			return lookup(err, ReasonReservationNotFound, "reservation", reservationID)
		}
		if _, err := tx.Books().GetForUpdate(ctx, peek.BookID); err != nil {
			return lookup(err, ReasonBookNotFound, "book", peek.BookID)
		}
		// 与取书借出同序：先锁副本再锁预约
		var c *models.BookCopy
		if peek.CopyID != nil {
			if c, err = tx.Copies().GetForUpdate(ctx, *peek.CopyID); err != nil {
				return lookup(err, ReasonCopyNotFound, "book copy", *peek.CopyID)
			}
		}
		r, err := tx.Reservations().GetForUpdate(ctx, reservationID)
		if err != nil {
			return lookup(err, ReasonReservationNotFound, "reservation", reservationID)
		}
		now := s.clock()
		if r.Status != models.ReservationFulfilled || r.LoanID != nil ||
			r.PickupDeadline == nil || !r.PickupDeadline.Before(now) {
			return nil
		}
		before = *r

		r.Status = models.ReservationExpired
		if err := tx.Reservations().Update(ctx, r); err != nil {
			return err
		}
		if c != nil && c.Status == models.CopyReserved {
			c.Status = models.CopyAvailable
			if err := tx.Copies().Update(ctx, c); err != nil {
				return err
			}
		}
		res = r
		return nil
	})
	if err != nil || res == nil {
		return false, err
	}

	s.record(ctx, "reservation", res.ID, "expire", before, res)
	s.notify(ctx, res.MemberID, NotifyReservationExpired,
		"Your reservation has expired",
		"The pickup window for your reserved book has passed and the copy was released.")
	// 级联：一次只为队首的下一位分配
	if _, err := s.Fulfill(ctx, res.BookID); err != nil {
		s.log.WarnContext(ctx, "cascading fulfill failed", slog.String("book", res.BookID), slog.Any("error", err))
	}
	return true, nil
}

// Queue lists the book's Active reservations in service order.
func (s *Service) Queue(ctx context.Context, bookID string) ([]models.Reservation, error) {
	var out []models.Reservation
	err := s.inTx(ctx, func(tx Tx) error {
		if _, err := tx.Books().Get(ctx, bookID); err != nil {
			return lookup(err, ReasonBookNotFound, "book", bookID)
		}
		var err error
		out, err = tx.Reservations().Find(ctx, ReservationFilter{
			BookID: bookID,
			Status: []models.ReservationStatus{models.ReservationActive},
		})
		return err
	})
	return out, err
}
