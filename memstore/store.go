// Package memstore is an in-memory circulation.Store. Transactions are
// serialisable: one transaction owns the store at a time and works on a copy
// that replaces the committed state on Commit.
package memstore

import (
	"context"
	"errors"
	"time"

	"library_circulation/circulation"
	"library_circulation/models"
)

var ErrTxDone = errors.New("memstore: transaction already committed or rolled back")

type state struct {
	members      *table[models.Member, circulation.MemberFilter]
	books        *table[models.Book, circulation.BookFilter]
	copies       *table[models.BookCopy, circulation.CopyFilter]
	loans        *table[models.Loan, circulation.LoanFilter]
	reservations *table[models.Reservation, circulation.ReservationFilter]
	fines        *table[models.Fine, circulation.FineFilter]
}

func (s *state) clone() *state {
	return &state{
		members:      s.members.clone(),
		books:        s.books.clone(),
		copies:       s.copies.clone(),
		loans:        s.loans.clone(),
		reservations: s.reservations.clone(),
		fines:        s.fines.clone(),
	}
}

type Store struct {
	// 容量为 1 的信号量：持有者即当前事务
	sem   chan struct{}
	state *state
}

func New() *Store {
	return &Store{
		sem:   make(chan struct{}, 1),
		state: newState(),
	}
}

// Begin waits for the running transaction to finish or ctx to end.
func (s *Store) Begin(ctx context.Context) (circulation.Tx, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &tx{store: s, work: s.state.clone()}, nil
}

type tx struct {
	store *Store
	work  *state
	done  bool
}

func (t *tx) Members() circulation.MemberRepository           { return t.work.members }
func (t *tx) Books() circulation.BookRepository               { return t.work.books }
func (t *tx) Copies() circulation.CopyRepository              { return t.work.copies }
func (t *tx) Loans() circulation.LoanRepository               { return t.work.loans }
func (t *tx) Reservations() circulation.ReservationRepository { return t.work.reservations }
func (t *tx) Fines() circulation.FineRepository               { return t.work.fines }

func (t *tx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.store.state = t.work
	<-t.store.sem
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	<-t.store.sem
	return nil
}

func newState() *state {
	return &state{
		members: &table[models.Member, circulation.MemberFilter]{
			rows:  map[string]models.Member{},
			id:    func(m *models.Member) string { return m.ID },
			less:  func(a, b *models.Member) bool { return a.ID < b.ID },
			stamp: func(m *models.Member, now time.Time, created bool) { stamp(&m.CreatedAt, &m.UpdatedAt, now, created) },
			unique: func(e, m *models.Member) string {
				if e.Email == m.Email {
					return "lib_members_email_key"
				}
				return ""
			},
		},
		books: &table[models.Book, circulation.BookFilter]{
			rows:  map[string]models.Book{},
			id:    func(b *models.Book) string { return b.ID },
			less:  func(a, b *models.Book) bool { return a.ID < b.ID },
			stamp: func(b *models.Book, now time.Time, created bool) { stamp(&b.CreatedAt, &b.UpdatedAt, now, created) },
		},
		copies: &table[models.BookCopy, circulation.CopyFilter]{
			rows: map[string]models.BookCopy{},
			id:   func(c *models.BookCopy) string { return c.ID },
			less: func(a, b *models.BookCopy) bool {
				if a.BookID != b.BookID {
					return a.BookID < b.BookID
				}
				return a.CopyNumber < b.CopyNumber
			},
			stamp: func(c *models.BookCopy, now time.Time, created bool) { stamp(&c.CreatedAt, &c.UpdatedAt, now, created) },
			unique: func(e, c *models.BookCopy) string {
				if e.BookID == c.BookID && e.CopyNumber == c.CopyNumber {
					return "idx_copy_book_number"
				}
				return ""
			},
		},
		loans: &table[models.Loan, circulation.LoanFilter]{
			rows: map[string]models.Loan{},
			id:   func(l *models.Loan) string { return l.ID },
			less: func(a, b *models.Loan) bool {
				if !a.LoanDate.Equal(b.LoanDate) {
					return a.LoanDate.Before(b.LoanDate)
				}
				return a.ID < b.ID
			},
			stamp: func(l *models.Loan, now time.Time, created bool) { stamp(&l.CreatedAt, &l.UpdatedAt, now, created) },
			unique: func(e, l *models.Loan) string {
				if e.CopyID == l.CopyID && e.Status.Open() && l.Status.Open() {
					return "idx_loan_open_copy"
				}
				return ""
			},
		},
		reservations: &table[models.Reservation, circulation.ReservationFilter]{
			rows: map[string]models.Reservation{},
			id:   func(r *models.Reservation) string { return r.ID },
			less: func(a, b *models.Reservation) bool {
				if !a.ReservationDate.Equal(b.ReservationDate) {
					return a.ReservationDate.Before(b.ReservationDate)
				}
				return a.ID < b.ID
			},
			stamp: func(r *models.Reservation, now time.Time, created bool) {
				stamp(&r.CreatedAt, &r.UpdatedAt, now, created)
			},
			unique: func(e, r *models.Reservation) string {
				if e.MemberID == r.MemberID && e.BookID == r.BookID &&
					e.Status == models.ReservationActive && r.Status == models.ReservationActive {
					return "idx_reservation_active_member_book"
				}
				return ""
			},
		},
		fines: &table[models.Fine, circulation.FineFilter]{
			rows: map[string]models.Fine{},
			id:   func(f *models.Fine) string { return f.ID },
			less: func(a, b *models.Fine) bool {
				if !a.IssuedAt.Equal(b.IssuedAt) {
					return a.IssuedAt.Before(b.IssuedAt)
				}
				return a.ID < b.ID
			},
			stamp: func(f *models.Fine, now time.Time, created bool) { stamp(&f.CreatedAt, &f.UpdatedAt, now, created) },
		},
	}
}

func stamp(createdAt, updatedAt *time.Time, now time.Time, created bool) {
	if created && createdAt.IsZero() {
		*createdAt = now
	}
	*updatedAt = now
}
