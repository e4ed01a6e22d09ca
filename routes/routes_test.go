package routes_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library_circulation/app"
	"library_circulation/circulation"
	"library_circulation/controllers"
	"library_circulation/memstore"
	"library_circulation/models"
	"library_circulation/notify"
	"library_circulation/routes"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type apiClient struct {
	t *testing.T
	r *gin.Engine
}

func newAPI(t *testing.T) apiClient {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	svc := circulation.NewService(memstore.New())
	routes.Register(r, &controllers.Srv{Svc: svc, Log: slog.Default()})
	return apiClient{t: t, r: r}
}

func (a apiClient) do(method, path string, body any, staff bool) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if staff {
		req.Header.Set(app.StaffHeader, "staff-1")
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

// raw 发送原样的请求体（可以是不合法的 JSON）
func (a apiClient) raw(method, path, body string) *httptest.ResponseRecorder {
	a.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(app.StaffHeader, "staff-1")
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type errorBody struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

func (a apiClient) member(email string) models.Member {
	a.t.Helper()
	w := a.do(http.MethodPost, "/api/members", app.H{"name": "Reader", "email": email}, false)
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.Member](a.t, w)
}

func (a apiClient) book(copies int) (models.Book, []models.BookCopy) {
	a.t.Helper()
	w := a.do(http.MethodPost, "/api/books", app.H{"title": "Dune", "copies": copies}, true)
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	body := decode[struct {
		Book   models.Book       `json:"book"`
		Copies []models.BookCopy `json:"copies"`
	}](a.t, w)
	return body.Book, body.Copies
}

func Test_Health(t *testing.T) {
	api := newAPI(t)

	w := api.do(http.MethodGet, "/healthz", nil, false)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}

func Test_CheckoutAndReturn_OverHTTP(t *testing.T) {
	// arrange
	api := newAPI(t)
	m := api.member("ada@example.org")
	other := api.member("bob@example.org")
	_, copies := api.book(1)

	// act
	w := api.do(http.MethodPost, "/api/loans", app.H{"memberId": m.ID, "copyId": copies[0].ID}, false)

	// assert
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	loan := decode[models.Loan](t, w)
	assert.Equal(t, models.LoanActive, loan.Status)

	w = api.do(http.MethodPost, "/api/loans", app.H{"memberId": other.ID, "copyId": copies[0].ID}, false)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	e := decode[errorBody](t, w)
	assert.Equal(t, "precondition_failed", e.Kind)
	assert.Equal(t, string(circulation.ReasonCopyNotAvailable), e.Reason)

	w = api.do(http.MethodGet, "/api/copies/"+copies[0].ID+"/availability", nil, false)
	assert.JSONEq(t, `{"copyId":"`+copies[0].ID+`","available":false}`, w.Body.String())

	w = api.do(http.MethodPost, "/api/loans/"+loan.ID+"/return", app.H{"condition": "good"}, false)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.LoanReturned, decode[models.Loan](t, w).Status)

	w = api.do(http.MethodPost, "/api/loans/"+loan.ID+"/return", nil, false)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, string(circulation.ReasonNotReturnable), decode[errorBody](t, w).Reason)
}

func Test_ErrorStatusMapping(t *testing.T) {
	api := newAPI(t)
	api.member("ada@example.org")

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"invalid uuid", http.MethodGet, "/api/loans/not-a-uuid", nil, http.StatusBadRequest},
		{"unknown member", http.MethodGet, "/api/members/0190a1b2-0000-7000-8000-000000000001", nil, http.StatusNotFound},
		{"unknown book", http.MethodGet, "/api/books/0190a1b2-0000-7000-8000-000000000002", nil, http.StatusNotFound},
		{"missing body", http.MethodPost, "/api/loans", app.H{}, http.StatusBadRequest},
		{"duplicate email", http.MethodPost, "/api/members", app.H{"name": "Ada", "email": "ADA@example.org"}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := api.do(tc.method, tc.path, tc.body, false)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
			assert.NotEmpty(t, decode[errorBody](t, w).Error)
		})
	}
}

func Test_StaffOnlyRoutes(t *testing.T) {
	api := newAPI(t)
	m := api.member("ada@example.org")
	b, copies := api.book(1)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/members"},
		{http.MethodPut, "/api/members/" + m.ID + "/status"},
		{http.MethodDelete, "/api/members/" + m.ID},
		{http.MethodPost, "/api/books"},
		{http.MethodPost, "/api/books/" + b.ID + "/copies"},
		{http.MethodDelete, "/api/books/" + b.ID},
		{http.MethodPost, "/api/books/" + b.ID + "/fulfill"},
		{http.MethodPut, "/api/copies/" + copies[0].ID + "/status"},
		{http.MethodPost, "/api/fines"},
		{http.MethodPost, "/admin/sweeps/all"},
		{http.MethodPost, "/admin/reconcile"},
	} {
		w := api.do(tc.method, tc.path, app.H{}, false)
		assert.Equal(t, http.StatusForbidden, w.Code, "%s %s", tc.method, tc.path)
	}

	w := api.do(http.MethodPost, "/admin/sweeps/all", nil, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[struct {
		Reports []circulation.SweepReport `json:"reports"`
	}](t, w)
	assert.Len(t, body.Reports, 3)

	w = api.do(http.MethodPost, "/admin/sweeps/everything", nil, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodGet, "/admin/audit", nil, true)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func Test_BulkCheckout_PartialFailure(t *testing.T) {
	api := newAPI(t)
	m := api.member("ada@example.org")
	other := api.member("bob@example.org")
	_, copies := api.book(2)
	w := api.do(http.MethodPost, "/api/loans", app.H{"memberId": other.ID, "copyId": copies[1].ID}, false)
	require.Equal(t, http.StatusCreated, w.Code)

	w = api.do(http.MethodPost, "/api/loans/bulk", app.H{"memberId": m.ID, "copyIds": []string{copies[0].ID, copies[1].ID}}, false)

	assert.Equal(t, http.StatusMultiStatus, w.Code, w.Body.String())
	body := decode[struct {
		Failed int `json:"failed"`
		Items  []struct {
			ID     string `json:"id"`
			OK     bool   `json:"ok"`
			Reason string `json:"reason"`
		} `json:"items"`
	}](t, w)
	assert.Equal(t, 1, body.Failed)
	require.Len(t, body.Items, 2)
	assert.True(t, body.Items[0].OK)
	assert.False(t, body.Items[1].OK)
	assert.Equal(t, string(circulation.ReasonCopyNotAvailable), body.Items[1].Reason)
}

func Test_Cancel_StaffNeedsReason(t *testing.T) {
	api := newAPI(t)
	m := api.member("ada@example.org")
	b, _ := api.book(0)
	w := api.do(http.MethodPost, "/api/reservations", app.H{"memberId": m.ID, "bookId": b.ID}, false)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	r := decode[models.Reservation](t, w)

	w = api.do(http.MethodPost, "/api/reservations/"+r.ID+"/cancel", nil, true)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, string(circulation.ReasonReasonRequired), decode[errorBody](t, w).Reason)

	w = api.do(http.MethodPost, "/api/reservations/"+r.ID+"/cancel", nil, false)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.ReservationCancelled, decode[models.Reservation](t, w).Status)
}

func Test_OptionalBodies_RejectMalformedJSON(t *testing.T) {
	api := newAPI(t)
	m := api.member("ada@example.org")
	_, copies := api.book(1)
	w := api.do(http.MethodPost, "/api/loans", app.H{"memberId": m.ID, "copyId": copies[0].ID}, false)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	loan := decode[models.Loan](t, w)

	for _, tc := range []struct{ name, path, body string }{
		{"return", "/api/loans/" + loan.ID + "/return", `{"condition": "damaged"`},
		{"renew with impossible date", "/api/loans/" + loan.ID + "/renew", `{"dueDate":"2099-02-30"}`},
		{"cancel", "/api/reservations/" + loan.ID + "/cancel", `{"reason":`},
		{"waive", "/api/fines/" + loan.ID + "/waive", `[1,2`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w := api.raw(http.MethodPost, tc.path, tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}

	// 请求体格式错误时不能按默认的 good 归还
	w = api.do(http.MethodGet, "/api/loans/"+loan.ID, nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.LoanActive, decode[models.Loan](t, w).Status)
	w = api.do(http.MethodGet, "/api/copies/"+copies[0].ID+"/availability", nil, false)
	assert.JSONEq(t, `{"copyId":"`+copies[0].ID+`","available":false}`, w.Body.String())

	// 空请求体仍表示使用默认值
	w = api.raw(http.MethodPost, "/api/loans/"+loan.ID+"/return", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.LoanReturned, decode[models.Loan](t, w).Status)
}

type fakeOutbox struct{ msgs []notify.Message }

func (f fakeOutbox) Pending(_ context.Context, limit int64) ([]notify.Message, error) {
	if int64(len(f.msgs)) > limit {
		return f.msgs[:limit], nil
	}
	return f.msgs, nil
}

func Test_AdminNotifications(t *testing.T) {
	api := newAPI(t)
	w := api.do(http.MethodGet, "/admin/notifications", nil, true)
	assert.Equal(t, http.StatusNotImplemented, w.Code)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	routes.Register(r, &controllers.Srv{
		Svc:    circulation.NewService(memstore.New()),
		Log:    slog.Default(),
		Outbox: fakeOutbox{msgs: []notify.Message{{ID: "n1", MemberID: "m1"}, {ID: "n2", MemberID: "m2"}}},
	})
	withQueue := apiClient{t: t, r: r}

	w = withQueue.do(http.MethodGet, "/admin/notifications?limit=1", nil, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[struct {
		Items []notify.Message `json:"items"`
	}](t, w)
	require.Len(t, body.Items, 1)
	assert.Equal(t, "n1", body.Items[0].ID)

	w = withQueue.do(http.MethodGet, "/admin/notifications?limit=0", nil, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = withQueue.do(http.MethodGet, "/admin/notifications", nil, false)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
