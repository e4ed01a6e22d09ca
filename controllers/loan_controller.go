package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"library_circulation/app"
	"library_circulation/circulation"
	"library_circulation/models"
)

type LoanController struct{ *Srv }

func NewLoanController(s *Srv) *LoanController { return &LoanController{Srv: s} }

// POST /api/loans
func (lc *LoanController) Checkout(c *gin.Context) {
	var in struct {
		MemberID string     `json:"memberId" binding:"required"`
		CopyID   string     `json:"copyId" binding:"required"`
		DueDate  *time.Time `json:"dueDate"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	if !validIDs(in.MemberID, in.CopyID) {
		badRequest(c, "invalid memberId or copyId")
		return
	}
	var loan *models.Loan
	err := lc.mutate(c, "Checkout", func(ctx context.Context) (err error) {
		loan, err = lc.Svc.Checkout(ctx, circulation.CheckoutRequest{
			MemberID: in.MemberID, CopyID: in.CopyID, DueDate: in.DueDate,
		})
		return err
	})
	if err != nil {
		lc.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, loan)
}

type bulkItem struct {
	ID     string       `json:"id"`
	OK     bool         `json:"ok"`
	Loan   *models.Loan `json:"loan,omitempty"`
	Error  string       `json:"error,omitempty"`
	Reason string       `json:"reason,omitempty"`
}

func bulkBody(results []circulation.BulkResult) app.H {
	items := make([]bulkItem, 0, len(results))
	failed := 0
	for _, r := range results {
		it := bulkItem{ID: r.ID, OK: r.OK(), Loan: r.Loan}
		if r.Err != nil {
			failed++
			it.Error = r.Err.Error()
			it.Reason = string(circulation.ReasonOf(r.Err))
		}
		items = append(items, it)
	}
	return app.H{"items": items, "failed": failed}
}

// POST /api/loans/bulk  每个副本独立事务，部分失败返回 207
func (lc *LoanController) BulkCheckout(c *gin.Context) {
	var in struct {
		MemberID string     `json:"memberId" binding:"required"`
		CopyIDs  []string   `json:"copyIds" binding:"required,min=1"`
		DueDate  *time.Time `json:"dueDate"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	if !validIDs(append([]string{in.MemberID}, in.CopyIDs...)...) {
		badRequest(c, "invalid memberId or copyIds")
		return
	}
	results := lc.Svc.BulkCheckout(c.Request.Context(), in.MemberID, in.CopyIDs, in.DueDate)
	body := bulkBody(results)
	c.JSON(bulkStatus(body["failed"].(int), len(results), http.StatusCreated), body)
}

func bulkStatus(failed, total, okStatus int) int {
	switch {
	case failed == 0:
		return okStatus
	case failed == total:
		return http.StatusUnprocessableEntity
	}
	return http.StatusMultiStatus
}

// POST /api/loans/:id/return
func (lc *LoanController) Return(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in struct {
		Condition circulation.Condition `json:"condition"`
	}
	if !bindOptional(c, &in) {
		return
	}
	if in.Condition == "" {
		in.Condition = circulation.ConditionGood
	}
	var loan *models.Loan
	err := lc.mutate(c, "Return", func(ctx context.Context) (err error) {
		loan, err = lc.Svc.Return(ctx, id, in.Condition)
		return err
	})
	if err != nil {
		lc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

// POST /api/loans/returns
func (lc *LoanController) BulkReturn(c *gin.Context) {
	var in struct {
		Items []circulation.ReturnItem `json:"items" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	for _, it := range in.Items {
		if !validIDs(it.LoanID) {
			badRequest(c, "invalid loanId "+it.LoanID)
			return
		}
	}
	results := lc.Svc.BulkReturn(c.Request.Context(), in.Items)
	body := bulkBody(results)
	c.JSON(bulkStatus(body["failed"].(int), len(results), http.StatusOK), body)
}

// POST /api/loans/:id/renew
func (lc *LoanController) Renew(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in struct {
		DueDate *time.Time `json:"dueDate"`
	}
	if !bindOptional(c, &in) {
		return
	}
	var loan *models.Loan
	err := lc.mutate(c, "Renew", func(ctx context.Context) (err error) {
		loan, err = lc.Svc.Renew(ctx, id, in.DueDate)
		return err
	})
	if err != nil {
		lc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

// POST /api/loans/:id/lost
func (lc *LoanController) ReportLost(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in struct {
		Fee decimal.Decimal `json:"fee"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	var loan *models.Loan
	err := lc.mutate(c, "ReportLost", func(ctx context.Context) (err error) {
		loan, err = lc.Svc.ReportLost(ctx, id, in.Fee)
		return err
	})
	if err != nil {
		lc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

// GET /api/loans/:id
func (lc *LoanController) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	loan, err := lc.Svc.GetLoan(c.Request.Context(), id)
	if err != nil {
		lc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

// GET /api/loans/:id/fine  当前应计逾期罚款（未归还按现在计算）
func (lc *LoanController) Fine(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	amount, err := lc.Svc.CalculateFine(c.Request.Context(), id)
	if err != nil {
		lc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"loanId": id, "amount": amount})
}

// GET /api/loans?status=&memberId=&bookId=&copyId=&overdue=true
func (lc *LoanController) List(c *gin.Context) {
	f := circulation.LoanFilter{
		MemberID: c.Query("memberId"),
		BookID:   c.Query("bookId"),
		CopyID:   c.Query("copyId"),
	}
	if st := c.Query("status"); st != "" {
		f.Status = []models.LoanStatus{models.LoanStatus(st)}
	}
	if c.Query("overdue") == "true" {
		now := time.Now().UTC()
		f.DueBefore = &now
		if len(f.Status) == 0 {
			f.Status = []models.LoanStatus{models.LoanActive, models.LoanOverdue}
		}
	}
	for _, id := range []string{f.MemberID, f.BookID, f.CopyID} {
		if id != "" && !validIDs(id) {
			badRequest(c, "invalid id filter")
			return
		}
	}
	res, err := lc.Svc.ListLoans(c.Request.Context(), f, pageFrom(c))
	if err != nil {
		lc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
