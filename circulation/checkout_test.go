package circulation_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library_circulation/circulation"
	"library_circulation/models"
)

func Test_Checkout_OpensLoanAndBorrowsCopy(t *testing.T) {
	// arrange
	f := newFixture(t)
	m := f.givenMember(t)
	b, copies := f.givenBook(t, 1)

	// act
	loan, err := f.svc.Checkout(f.ctx, circulation.CheckoutRequest{MemberID: m.ID, CopyID: copies[0].ID})

	// assert
	require.NoError(t, err)
	assert.Equal(t, models.LoanActive, loan.Status)
	assert.Equal(t, b.ID, loan.BookID)
	assert.Equal(t, t0, loan.LoanDate)
	assert.Equal(t, t0.Add(14*24*time.Hour), loan.DueDate)
	assert.Nil(t, loan.ReturnDate)
	assert.Equal(t, models.CopyBorrowed, f.copyStatus(t, b.ID, copies[0].ID))
	assert.Equal(t, 1, f.member(t, m.ID).ActiveLoanCount)
	assert.Contains(t, f.audit.actions(loan.ID), "checkout")
}

func Test_Checkout_RejectsBorrowedCopy(t *testing.T) {
	f := newFixture(t)
	first, second := f.givenMember(t), f.givenMember(t)
	_, copies := f.givenBook(t, 1)
	f.givenLoan(t, first.ID, copies[0].ID)

	_, err := f.svc.Checkout(f.ctx, circulation.CheckoutRequest{MemberID: second.ID, CopyID: copies[0].ID})

	assert.ErrorIs(t, err, circulation.ErrCopyNotAvailable)
	assert.Contains(t, err.Error(), "is not available (status: borrowed)")
	assert.Equal(t, 0, f.member(t, second.ID).ActiveLoanCount)
}

func Test_Checkout_ConcurrentOnSameCopy_ExactlyOneSucceeds(t *testing.T) {
	// arrange
	f := newFixture(t)
	b, copies := f.givenBook(t, 1)
	const n = 12
	members := make([]*models.Member, n)
	for i := range members {
		members[i] = f.givenMember(t)
	}

	// act
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		errs []error
	)
	for _, m := range members {
		wg.Add(1)
		go func(memberID string) {
			defer wg.Done()
			_, err := f.svc.Checkout(f.ctx, circulation.CheckoutRequest{MemberID: memberID, CopyID: copies[0].ID})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
				return
			}
			errs = append(errs, err)
		}(m.ID)
	}
	wg.Wait()

	// assert
	assert.Equal(t, 1, ok)
	require.Len(t, errs, n-1)
	for _, err := range errs {
		assert.ErrorIs(t, err, circulation.ErrCopyNotAvailable)
	}
	open, err := f.svc.ListLoans(f.ctx, circulation.LoanFilter{
		CopyID: copies[0].ID,
		Status: []models.LoanStatus{models.LoanActive, models.LoanOverdue},
	}, circulation.PageRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, open.Total)
	assert.Equal(t, models.CopyBorrowed, f.copyStatus(t, b.ID, copies[0].ID))
}

func Test_Checkout_LoanLimit(t *testing.T) {
	f := newFixture(t)
	m := f.givenMember(t)
	_, copies := f.givenBook(t, 6)

	var loans []*models.Loan
	for _, c := range copies[:5] {
		loans = append(loans, f.givenLoan(t, m.ID, c.ID))
	}

	_, err := f.svc.Checkout(f.ctx, circulation.CheckoutRequest{MemberID: m.ID, CopyID: copies[5].ID})
	require.ErrorIs(t, err, circulation.ErrLoanLimitReached)
	assert.Equal(t, circulation.KindPrecondition, circulation.KindOf(err))
	assert.Equal(t, 5, f.member(t, m.ID).ActiveLoanCount)

	// 还一本后可以再借
	_, err = f.svc.Return(f.ctx, loans[0].ID, circulation.ConditionGood)
	require.NoError(t, err)

	_, err = f.svc.Checkout(f.ctx, circulation.CheckoutRequest{MemberID: m.ID, CopyID: copies[5].ID})
	assert.NoError(t, err)
	assert.Equal(t, 5, f.member(t, m.ID).ActiveLoanCount)
}

func Test_Checkout_FineCeiling(t *testing.T) {
	f := newFixture(t)
	_, copies := f.givenBook(t, 2)

	atLimit := f.givenMember(t)
	f.givenFine(t, atLimit.ID, "10.00")
	_, err := f.svc.Checkout(f.ctx, circulation.CheckoutRequest{MemberID: atLimit.ID, CopyID: copies[0].ID})
	assert.NoError(t, err, "exactly the ceiling is still allowed")

	over := f.givenMember(t)
	f.givenFine(t, over.ID, "10.01")
	_, err = f.svc.Checkout(f.ctx, circulation.CheckoutRequest{MemberID: over.ID, CopyID: copies[1].ID})
	assert.ErrorIs(t, err, circulation.ErrExcessiveFines)
	assert.Contains(t, err.Error(), "$10.01")
}

func Test_Checkout_InactiveMember(t *testing.T) {
	f := newFixture(t)
	m := f.givenMember(t)
	_, copies := f.givenBook(t, 1)
	_, err := f.svc.SetMemberStatus(f.ctx, m.ID, models.MemberSuspended)
	require.NoError(t, err)

	_, err = f.svc.Checkout(f.ctx, circulation.CheckoutRequest{MemberID: m.ID, CopyID: copies[0].ID})

	assert.ErrorIs(t, err, circulation.ErrMemberNotActive)
}

func Test_Checkout_CustomDueDate(t *testing.T) {
	f := newFixture(t)
	m := f.givenMember(t)
	_, copies := f.givenBook(t, 1)

	for name, due := range map[string]time.Time{
		"now":            t0,
		"in the past":    t0.Add(-time.Hour),
		"beyond horizon": t0.Add(30*24*time.Hour + time.Second),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Checkout(f.ctx, circulation.CheckoutRequest{MemberID: m.ID, CopyID: copies[0].ID, DueDate: ptr(due)})
			assert.ErrorIs(t, err, circulation.ErrInvalidDueDate)
		})
	}

	loan, err := f.svc.Checkout(f.ctx, circulation.CheckoutRequest{
		MemberID: m.ID, CopyID: copies[0].ID, DueDate: ptr(t0.Add(30 * 24 * time.Hour)),
	})
	require.NoError(t, err)
	assert.Equal(t, t0.Add(30*24*time.Hour), loan.DueDate)
}

func Test_Checkout_NotFound(t *testing.T) {
	f := newFixture(t)
	m := f.givenMember(t)
	_, copies := f.givenBook(t, 1)

	_, err := f.svc.Checkout(f.ctx, circulation.CheckoutRequest{MemberID: "0190a1b2-0000-7000-8000-000000000001", CopyID: copies[0].ID})
	assert.ErrorIs(t, err, circulation.ErrMemberNotFound)

	_, err = f.svc.Checkout(f.ctx, circulation.CheckoutRequest{MemberID: m.ID, CopyID: "0190a1b2-0000-7000-8000-000000000002"})
	assert.ErrorIs(t, err, circulation.ErrCopyNotFound)
	assert.Equal(t, circulation.KindNotFound, circulation.KindOf(err))

	_, err = f.svc.Checkout(f.ctx, circulation.CheckoutRequest{MemberID: m.ID})
	assert.Equal(t, circulation.ReasonInvalidInput, circulation.ReasonOf(err))
}

func Test_Checkout_FailureLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	m := f.givenMember(t)
	b, copies := f.givenBook(t, 1)
	_, err := f.svc.SetCopyStatus(f.ctx, copies[0].ID, models.CopyDamaged)
	require.NoError(t, err)

	_, err = f.svc.Checkout(f.ctx, circulation.CheckoutRequest{MemberID: m.ID, CopyID: copies[0].ID})

	require.ErrorIs(t, err, circulation.ErrCopyNotAvailable)
	loans, err := f.svc.ListLoans(f.ctx, circulation.LoanFilter{MemberID: m.ID}, circulation.PageRequest{})
	require.NoError(t, err)
	assert.Zero(t, loans.Total)
	assert.Equal(t, models.CopyDamaged, f.copyStatus(t, b.ID, copies[0].ID))
	assert.Equal(t, 0, f.member(t, m.ID).ActiveLoanCount)
}

func Test_BulkCheckout_IndependentPerCopy(t *testing.T) {
	f := newFixture(t)
	m, other := f.givenMember(t), f.givenMember(t)
	_, copies := f.givenBook(t, 3)
	f.givenLoan(t, other.ID, copies[1].ID)

	res := f.svc.BulkCheckout(f.ctx, m.ID, []string{copies[0].ID, copies[1].ID, copies[2].ID}, nil)

	require.Len(t, res, 3)
	assert.True(t, res[0].OK())
	assert.ErrorIs(t, res[1].Err, circulation.ErrCopyNotAvailable)
	assert.True(t, res[2].OK())
	assert.Equal(t, 2, f.member(t, m.ID).ActiveLoanCount)

	back := f.svc.BulkReturn(f.ctx, []circulation.ReturnItem{{LoanID: res[0].Loan.ID}, {LoanID: res[2].Loan.ID, Condition: circulation.ConditionDamaged}})
	require.Len(t, back, 2)
	assert.True(t, back[0].OK())
	assert.True(t, back[1].OK())
	assert.Equal(t, 0, f.member(t, m.ID).ActiveLoanCount)
}

func Test_Checkout_ShelfCopiesGoToQueueFirst(t *testing.T) {
	f := newFixture(t)
	waiting, walkIn := f.givenMember(t), f.givenMember(t)
	b, copies := f.givenBook(t, 1)
	r := f.givenReservation(t, waiting.ID, b.ID)

	// 队列里有人时，后来者不能借走在架副本
	_, err := f.svc.Checkout(f.ctx, circulation.CheckoutRequest{MemberID: walkIn.ID, CopyID: copies[0].ID})
	require.ErrorIs(t, err, circulation.ErrReservationConflict)
	assert.Equal(t, models.CopyAvailable, f.copyStatus(t, b.ID, copies[0].ID))
	assert.Equal(t, models.ReservationActive, f.reservation(t, r.ID).Status)

	// 队首本人可以直接借，预约随之兑现
	loan, err := f.svc.Checkout(f.ctx, circulation.CheckoutRequest{MemberID: waiting.ID, CopyID: copies[0].ID})
	require.NoError(t, err)
	got := f.reservation(t, r.ID)
	assert.Equal(t, models.ReservationFulfilled, got.Status)
	require.NotNil(t, got.LoanID)
	assert.Equal(t, loan.ID, *got.LoanID)
	require.NotNil(t, got.CopyID)
	assert.Equal(t, copies[0].ID, *got.CopyID)
	assert.Contains(t, f.audit.actions(r.ID), "fulfill")

	queue, err := f.svc.Queue(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, queue)
}

func Test_Checkout_SpareShelfCopiesStayOpen(t *testing.T) {
	f := newFixture(t)
	first, second, walkIn := f.givenMember(t), f.givenMember(t), f.givenMember(t)
	b, copies := f.givenBook(t, 2)
	f.givenReservation(t, first.ID, b.ID)

	// 两本在架、一人排队：多出的一本照常可借
	_, err := f.svc.Checkout(f.ctx, circulation.CheckoutRequest{MemberID: walkIn.ID, CopyID: copies[0].ID})
	require.NoError(t, err)

	// 第二位排队者排在 first 之后，剩下的一本归 first
	f.givenReservation(t, second.ID, b.ID)
	_, err = f.svc.Checkout(f.ctx, circulation.CheckoutRequest{MemberID: second.ID, CopyID: copies[1].ID})
	assert.ErrorIs(t, err, circulation.ErrReservationConflict)

	_, err = f.svc.Checkout(f.ctx, circulation.CheckoutRequest{MemberID: first.ID, CopyID: copies[1].ID})
	assert.NoError(t, err)
}
