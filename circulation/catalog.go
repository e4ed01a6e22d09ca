package circulation

import (
	"context"
	"net/mail"
	"strings"

	"library_circulation/models"
)

type RegisterMemberRequest struct {
	Name  string
	Email string
}

// RegisterMember creates an Active member with a clean balance.
func (s *Service) RegisterMember(ctx context.Context, req RegisterMemberRequest) (*models.Member, error) {
	var member *models.Member
	err := s.observe(ctx, "RegisterMember", func(ctx context.Context) error {
		name := strings.TrimSpace(req.Name)
		email := strings.ToLower(strings.TrimSpace(req.Email))
		if name == "" {
			return precondition(ReasonInvalidInput, "Member name is required")
		}
		if _, err := mail.ParseAddress(email); err != nil {
			return precondition(ReasonInvalidInput, "Invalid email address %q", req.Email)
		}
		return s.inTx(ctx, func(tx Tx) error {
			taken, err := tx.Members().Exists(ctx, MemberFilter{Email: email})
			if err != nil {
				return err
			}
			if taken {
				return precondition(ReasonInvalidInput, "A member with email %s already exists", email)
			}
			m := &models.Member{
				ID:     newID(),
				Name:   name,
				Email:  email,
				Status: models.MemberActive,
			}
			if err := tx.Members().Add(ctx, m); err != nil {
				return err
			}
			member = m
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, "member", member.ID, "create", nil, member)
	return member, nil
}

// SetMemberStatus moves a member between Active, Suspended and Expired.
func (s *Service) SetMemberStatus(ctx context.Context, memberID string, status models.MemberStatus) (*models.Member, error) {
	var member, before *models.Member
	err := s.observe(ctx, "SetMemberStatus", func(ctx context.Context) error {
		if !status.Valid() {
			return precondition(ReasonInvalidStatus, "Unknown member status %q", status)
		}
		return s.inTx(ctx, func(tx Tx) error {
			m, err := tx.Members().GetForUpdate(ctx, memberID)
			if err != nil {
				return lookup(err, ReasonMemberNotFound, "member", memberID)
			}
			prev := *m
			before = &prev
			m.Status = status
			if err := tx.Members().Update(ctx, m); err != nil {
				return err
			}
			member = m
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, "member", member.ID, "status_change", before, member)
	return member, nil
}

// DeleteMember removes a member that never borrowed, reserved or was fined.
// Members with history are expired instead.
func (s *Service) DeleteMember(ctx context.Context, memberID string) error {
	var before *models.Member
	err := s.observe(ctx, "DeleteMember", func(ctx context.Context) error {
		return s.inTx(ctx, func(tx Tx) error {
			m, err := tx.Members().GetForUpdate(ctx, memberID)
			if err != nil {
				return lookup(err, ReasonMemberNotFound, "member", memberID)
			}
			loans, err := tx.Loans().Exists(ctx, LoanFilter{MemberID: m.ID})
			if err != nil {
				return err
			}
			reservations, err := tx.Reservations().Exists(ctx, ReservationFilter{MemberID: m.ID})
			if err != nil {
				return err
			}
			fines, err := tx.Fines().Exists(ctx, FineFilter{MemberID: m.ID})
			if err != nil {
				return err
			}
			if loans || reservations || fines {
				return precondition(ReasonMemberHasHistory,
					"Cannot delete member %s with circulation history; set the status to expired instead", m.ID)
			}
			before = m
			return tx.Members().Delete(ctx, m)
		})
	})
	if err != nil {
		return err
	}
	s.record(ctx, "member", before.ID, "delete", before, nil)
	return nil
}

type AddBookRequest struct {
	ISBN   string
	Title  string
	Author string
	Copies int
}

// AddBook creates a title with Copies available copies numbered from 1.
func (s *Service) AddBook(ctx context.Context, req AddBookRequest) (*models.Book, []models.BookCopy, error) {
	var (
		book   *models.Book
		copies []models.BookCopy
	)
	err := s.observe(ctx, "AddBook", func(ctx context.Context) error {
		title := strings.TrimSpace(req.Title)
		if title == "" {
			return precondition(ReasonInvalidInput, "Book title is required")
		}
		if req.Copies < 0 {
			return precondition(ReasonInvalidInput, "Number of copies cannot be negative")
		}
		return s.inTx(ctx, func(tx Tx) error {
			b := &models.Book{
				ID:     newID(),
				ISBN:   strings.TrimSpace(req.ISBN),
				Title:  title,
				Author: strings.TrimSpace(req.Author),
			}
			if err := tx.Books().Add(ctx, b); err != nil {
				return err
			}
			var err error
			copies, err = addCopies(ctx, tx, b.ID, 1, req.Copies)
			if err != nil {
				return err
			}
			book = b
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}
	s.record(ctx, "book", book.ID, "create", nil, book)
	return book, copies, nil
}

// AddCopies appends n available copies, numbered after the current highest.
func (s *Service) AddCopies(ctx context.Context, bookID string, n int) ([]models.BookCopy, error) {
	var copies []models.BookCopy
	err := s.observe(ctx, "AddCopies", func(ctx context.Context) error {
		if n <= 0 {
			return precondition(ReasonInvalidInput, "Number of copies must be at least 1")
		}
		return s.inTx(ctx, func(tx Tx) error {
			// 锁书，保证编号 max+1 不会并发重复
			if _, err := tx.Books().GetForUpdate(ctx, bookID); err != nil {
				return lookup(err, ReasonBookNotFound, "book", bookID)
			}
			existing, err := tx.Copies().Find(ctx, CopyFilter{BookID: bookID})
			if err != nil {
				return err
			}
			next := 1
			for _, c := range existing {
				if c.CopyNumber >= next {
					next = c.CopyNumber + 1
				}
			}
			copies, err = addCopies(ctx, tx, bookID, next, n)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	for i := range copies {
		s.record(ctx, "book_copy", copies[i].ID, "create", nil, copies[i])
	}
	// 新副本可以直接满足排队中的预约
	s.offerToQueue(ctx, bookID)
	return copies, nil
}

func addCopies(ctx context.Context, tx Tx, bookID string, from, n int) ([]models.BookCopy, error) {
	out := make([]models.BookCopy, 0, n)
	for i := 0; i < n; i++ {
		c := &models.BookCopy{
			ID:         newID(),
			BookID:     bookID,
			CopyNumber: from + i,
			Status:     models.CopyAvailable,
		}
		if err := tx.Copies().Add(ctx, c); err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

// DeleteBook removes a title and its copies. Refused while any copy is on loan
// or anyone is queued or holding a copy for pickup.
func (s *Service) DeleteBook(ctx context.Context, bookID string) error {
	var before *models.Book
	err := s.observe(ctx, "DeleteBook", func(ctx context.Context) error {
		return s.inTx(ctx, func(tx Tx) error {
			b, err := tx.Books().GetForUpdate(ctx, bookID)
			if err != nil {
				return lookup(err, ReasonBookNotFound, "book", bookID)
			}
			open, err := bookHasOpenLoans(ctx, tx, b.ID)
			if err != nil {
				return err
			}
			if open {
				return precondition(ReasonBookHasActiveLoans, "Cannot delete book while it has active loans")
			}
			queued, err := bookHasActiveReservations(ctx, tx, b.ID)
			if err != nil {
				return err
			}
			held, err := bookHasPendingPickup(ctx, tx, b.ID)
			if err != nil {
				return err
			}
			if queued || held {
				return precondition(ReasonBookHasReservations, "Cannot delete book while it has active reservations")
			}

			// 先删副本，再删书
			copies, err := tx.Copies().Find(ctx, CopyFilter{BookID: b.ID})
			if err != nil {
				return err
			}
			for i := range copies {
				if err := tx.Copies().Delete(ctx, &copies[i]); err != nil {
					return err
				}
			}
			if err := tx.Books().Delete(ctx, b); err != nil {
				return err
			}
			before = b
			return nil
		})
	})
	if err != nil {
		return err
	}
	s.record(ctx, "book", before.ID, "delete", before, nil)
	return nil
}

// SetCopyStatus is manual copy maintenance: repair (Available), Damaged or Lost.
// Borrowed and Reserved are owned by checkout and the reservation queue.
func (s *Service) SetCopyStatus(ctx context.Context, copyID string, status models.CopyStatus) (*models.BookCopy, error) {
	var copyAfter, before *models.BookCopy
	err := s.observe(ctx, "SetCopyStatus", func(ctx context.Context) error {
		switch status {
		case models.CopyAvailable, models.CopyDamaged, models.CopyLost:
		default:
			return precondition(ReasonInvalidStatus, "Book copy status cannot be set to %q manually", status)
		}
		return s.inTx(ctx, func(tx Tx) error {
			peek, err := tx.Copies().Get(ctx, copyID)
			if err != nil {
				return lookup(err, ReasonCopyNotFound, "book copy", copyID)
			}
			if _, err := tx.Books().GetForUpdate(ctx, peek.BookID); err != nil {
				return lookup(err, ReasonBookNotFound, "book", peek.BookID)
			}
			c, err := tx.Copies().GetForUpdate(ctx, copyID)
			if err != nil {
				return lookup(err, ReasonCopyNotFound, "book copy", copyID)
			}
			open, err := copyHasOpenLoans(ctx, tx, c.ID)
			if err != nil {
				return err
			}
			if open {
				if status == models.CopyAvailable {
					return precondition(ReasonCopyHasActiveLoans, "Cannot mark book copy as Available while it has active loans")
				}
				return precondition(ReasonCopyHasActiveLoans,
					"Book copy %s is on loan; report the loan lost or return it instead", c.ID)
			}
			if c.Status == models.CopyReserved {
				return precondition(ReasonInvalidStatus,
					"Book copy %s is held for a reservation pickup", c.ID)
			}
			prev := *c
			before = &prev
			c.Status = status
			if err := tx.Copies().Update(ctx, c); err != nil {
				return err
			}
			copyAfter = c
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, "book_copy", copyAfter.ID, "status_change", before, copyAfter)
	if status == models.CopyAvailable && before.Status != models.CopyAvailable {
		s.offerToQueue(ctx, copyAfter.BookID)
	}
	return copyAfter, nil
}
