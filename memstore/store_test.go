package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library_circulation/circulation"
	"library_circulation/memstore"
	"library_circulation/models"
)

func begin(t *testing.T, s *memstore.Store) circulation.Tx {
	t.Helper()
	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	return tx
}

func Test_Store_CommitPublishesRollbackDiscards(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	tx := begin(t, s)
	require.NoError(t, tx.Members().Add(ctx, &models.Member{ID: "m1", Email: "a@x.org", Status: models.MemberActive}))
	require.NoError(t, tx.Commit())

	tx = begin(t, s)
	require.NoError(t, tx.Members().Add(ctx, &models.Member{ID: "m2", Email: "b@x.org"}))
	m, err := tx.Members().Get(ctx, "m1")
	require.NoError(t, err)
	m.Name = "changed"
	require.NoError(t, tx.Members().Update(ctx, m))
	require.NoError(t, tx.Rollback())

	tx = begin(t, s)
	defer func() { _ = tx.Rollback() }()
	_, err = tx.Members().Get(ctx, "m2")
	assert.ErrorIs(t, err, circulation.ErrNoRecord)
	got, err := tx.Members().Get(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, got.Name)
	assert.False(t, got.CreatedAt.IsZero())
}

func Test_Store_TxFinishesOnce(t *testing.T) {
	s := memstore.New()
	tx := begin(t, s)

	require.NoError(t, tx.Commit())
	assert.ErrorIs(t, tx.Commit(), memstore.ErrTxDone)
	assert.ErrorIs(t, tx.Rollback(), memstore.ErrTxDone)
}

func Test_Store_UniqueConstraints(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	tx := begin(t, s)
	defer func() { _ = tx.Rollback() }()

	require.NoError(t, tx.Members().Add(ctx, &models.Member{ID: "m1", Email: "a@x.org"}))
	err := tx.Members().Add(ctx, &models.Member{ID: "m2", Email: "a@x.org"})
	assert.ErrorIs(t, err, circulation.ErrConflict)
	err = tx.Members().Add(ctx, &models.Member{ID: "m1", Email: "c@x.org"})
	assert.ErrorIs(t, err, circulation.ErrConflict)

	// 同一副本只能有一条未归还 loan
	require.NoError(t, tx.Loans().Add(ctx, &models.Loan{ID: "l1", CopyID: "c1", Status: models.LoanActive}))
	err = tx.Loans().Add(ctx, &models.Loan{ID: "l2", CopyID: "c1", Status: models.LoanOverdue})
	assert.ErrorIs(t, err, circulation.ErrConflict)
	require.NoError(t, tx.Loans().Add(ctx, &models.Loan{ID: "l3", CopyID: "c1", Status: models.LoanReturned}))

	// 同一会员同一本书只能有一条 Active 预约
	require.NoError(t, tx.Reservations().Add(ctx, &models.Reservation{ID: "r1", MemberID: "m1", BookID: "b1", Status: models.ReservationActive}))
	err = tx.Reservations().Add(ctx, &models.Reservation{ID: "r2", MemberID: "m1", BookID: "b1", Status: models.ReservationActive})
	assert.ErrorIs(t, err, circulation.ErrConflict)
	require.NoError(t, tx.Reservations().Add(ctx, &models.Reservation{ID: "r3", MemberID: "m1", BookID: "b1", Status: models.ReservationCancelled}))

	err = tx.Members().Update(ctx, &models.Member{ID: "missing"})
	assert.ErrorIs(t, err, circulation.ErrNoRecord)
}

func Test_Store_QueueOrderAndPaging(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	tx := begin(t, s)
	defer func() { _ = tx.Rollback() }()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// 插入顺序与排队顺序不同；同一时刻按 id
	for _, r := range []models.Reservation{
		{ID: "r-c", MemberID: "m3", BookID: "b1", ReservationDate: base.Add(time.Minute), Status: models.ReservationActive},
		{ID: "r-b", MemberID: "m2", BookID: "b1", ReservationDate: base, Status: models.ReservationActive},
		{ID: "r-a", MemberID: "m1", BookID: "b1", ReservationDate: base, Status: models.ReservationActive},
		{ID: "r-z", MemberID: "m4", BookID: "b2", ReservationDate: base, Status: models.ReservationActive},
	} {
		r := r
		require.NoError(t, tx.Reservations().Add(ctx, &r))
	}

	filter := circulation.ReservationFilter{BookID: "b1", Status: []models.ReservationStatus{models.ReservationActive}}
	head, err := tx.Reservations().First(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, "r-a", head.ID)

	all, err := tx.Reservations().Find(ctx, filter)
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, r := range all {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"r-a", "r-b", "r-c"}, ids)

	n, err := tx.Reservations().Count(ctx, filter)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	page, err := tx.Reservations().List(ctx, filter, circulation.PageRequest{Page: 2, Size: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "r-c", page.Items[0].ID)

	empty, err := tx.Reservations().List(ctx, filter, circulation.PageRequest{Page: 9, Size: 2})
	require.NoError(t, err)
	assert.NotNil(t, empty.Items)
	assert.Empty(t, empty.Items)

	_, err = tx.Reservations().First(ctx, circulation.ReservationFilter{BookID: "none"})
	assert.ErrorIs(t, err, circulation.ErrNoRecord)
}

func Test_Store_BeginWaitsForRunningTx(t *testing.T) {
	s := memstore.New()
	held := begin(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Begin(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	done := make(chan circulation.Tx)
	go func() {
		tx, err := s.Begin(context.Background())
		if err == nil {
			done <- tx
		}
	}()
	select {
	case <-done:
		t.Fatal("second transaction started while the first was open")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, held.Commit())
	select {
	case tx := <-done:
		require.NoError(t, tx.Rollback())
	case <-time.After(time.Second):
		t.Fatal("second transaction never started")
	}
}

func Test_Store_DeleteRemovesRow(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	tx := begin(t, s)
	defer func() { _ = tx.Rollback() }()
	b := &models.Book{ID: "b1", Title: "T"}
	require.NoError(t, tx.Books().Add(ctx, b))

	require.NoError(t, tx.Books().Delete(ctx, b))

	ok, err := tx.Books().Exists(ctx, circulation.BookFilter{IDs: []string{"b1"}})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, tx.Books().Delete(ctx, b), circulation.ErrNoRecord)
}
