package circulation_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library_circulation/circulation"
	"library_circulation/memstore"
	"library_circulation/models"
	"library_circulation/notify"
)

var t0 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type auditEntry struct {
	EntityType, EntityID, Action string
}

type auditRecorder struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (a *auditRecorder) Record(_ context.Context, entityType, entityID, action string, _, _ any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, auditEntry{entityType, entityID, action})
	return nil
}

func (a *auditRecorder) actions(entityID string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, e := range a.entries {
		if e.EntityID == entityID {
			out = append(out, e.Action)
		}
	}
	return out
}

type fixture struct {
	ctx   context.Context
	store *memstore.Store
	svc   *circulation.Service
	clock *fakeClock
	sent  *notify.Recorder
	audit *auditRecorder
	seq   int
}

func newFixture(t *testing.T, opts ...circulation.Option) *fixture {
	t.Helper()
	f := &fixture{
		ctx:   context.Background(),
		store: memstore.New(),
		clock: &fakeClock{now: t0},
		sent:  &notify.Recorder{},
		audit: &auditRecorder{},
	}
	base := []circulation.Option{
		circulation.WithClock(f.clock.Now),
		circulation.WithNotifier(f.sent),
		circulation.WithAuditSink(f.audit),
	}
	f.svc = circulation.NewService(f.store, append(base, opts...)...)
	return f
}

func (f *fixture) givenMember(t *testing.T) *models.Member {
	t.Helper()
	f.seq++
	m, err := f.svc.RegisterMember(f.ctx, circulation.RegisterMemberRequest{
		Name:  fmt.Sprintf("Member %d", f.seq),
		Email: fmt.Sprintf("member%d@example.org", f.seq),
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) givenBook(t *testing.T, copies int) (*models.Book, []models.BookCopy) {
	t.Helper()
	f.seq++
	b, cs, err := f.svc.AddBook(f.ctx, circulation.AddBookRequest{
		ISBN:   fmt.Sprintf("978-0-00-%06d", f.seq),
		Title:  fmt.Sprintf("Title %d", f.seq),
		Author: "Anon",
		Copies: copies,
	})
	require.NoError(t, err)
	require.Len(t, cs, copies)
	return b, cs
}

func (f *fixture) givenLoan(t *testing.T, memberID, copyID string) *models.Loan {
	t.Helper()
	l, err := f.svc.Checkout(f.ctx, circulation.CheckoutRequest{MemberID: memberID, CopyID: copyID})
	require.NoError(t, err)
	return l
}

func (f *fixture) givenReservation(t *testing.T, memberID, bookID string) *models.Reservation {
	t.Helper()
	r, err := f.svc.Reserve(f.ctx, circulation.ReserveRequest{MemberID: memberID, BookID: bookID})
	require.NoError(t, err)
	// 队列按 reservation_date 排序，拉开时间避免并列
	f.clock.Advance(time.Minute)
	return r
}

func (f *fixture) givenFine(t *testing.T, memberID, amount string) *models.Fine {
	t.Helper()
	fine, err := f.svc.AssessFine(f.ctx, circulation.AssessRequest{
		MemberID: memberID,
		Type:     models.FineDamage,
		Amount:   decimal.RequireFromString(amount),
	})
	require.NoError(t, err)
	return fine
}

func (f *fixture) member(t *testing.T, id string) *models.Member {
	t.Helper()
	m, err := f.svc.GetMember(f.ctx, id)
	require.NoError(t, err)
	return m
}

func (f *fixture) copyStatus(t *testing.T, bookID, copyID string) models.CopyStatus {
	t.Helper()
	d, err := f.svc.GetBook(f.ctx, bookID)
	require.NoError(t, err)
	for _, c := range d.Copies {
		if c.ID == copyID {
			return c.Status
		}
	}
	t.Fatalf("copy %s not found", copyID)
	return ""
}

func (f *fixture) reservation(t *testing.T, id string) *models.Reservation {
	t.Helper()
	r, err := f.svc.GetReservation(f.ctx, id)
	require.NoError(t, err)
	return r
}

func (f *fixture) pendingFines(t *testing.T, memberID string) []models.Fine {
	t.Helper()
	p, err := f.svc.MemberFines(f.ctx, memberID, []models.FineStatus{models.FinePending}, circulation.PageRequest{Size: 200})
	require.NoError(t, err)
	return p.Items
}

// assertBalanceMatchesLedger 会员缓存余额 = Pending 罚款之和
func (f *fixture) assertBalanceMatchesLedger(t *testing.T, memberID string) {
	t.Helper()
	sum := decimal.Zero
	for _, fine := range f.pendingFines(t, memberID) {
		sum = sum.Add(fine.Amount)
	}
	assertMoney(t, sum.StringFixed(2), f.member(t, memberID).OutstandingFines)
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Equal(t, want, got.StringFixed(2))
}

func ptr[T any](v T) *T { return &v }
