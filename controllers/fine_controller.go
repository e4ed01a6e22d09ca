package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"library_circulation/circulation"
	"library_circulation/models"
)

type FineController struct{ *Srv }

func NewFineController(s *Srv) *FineController { return &FineController{Srv: s} }

// POST /api/fines/:id/pay
func (fc *FineController) Pay(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in struct {
		Amount    decimal.Decimal `json:"amount"`
		Method    string          `json:"method" binding:"required"`
		Reference string          `json:"reference"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	var f *models.Fine
	err := fc.mutate(c, "PayFine", func(ctx context.Context) (err error) {
		f, err = fc.Svc.PayFine(ctx, circulation.PayRequest{
			FineID: id, Amount: in.Amount, Method: in.Method, Reference: in.Reference,
		})
		return err
	})
	if err != nil {
		fc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

// POST /api/fines/:id/waive  仅员工
func (fc *FineController) Waive(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in struct {
		Reason string `json:"reason"`
	}
	if !bindOptional(c, &in) {
		return
	}
	var f *models.Fine
	err := fc.mutate(c, "WaiveFine", func(ctx context.Context) (err error) {
		f, err = fc.Svc.WaiveFine(ctx, circulation.WaiveRequest{
			FineID: id, StaffID: c.GetString("staffID"), Reason: in.Reason,
		})
		return err
	})
	if err != nil {
		fc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

// POST /api/fines  员工开具遗失/损坏罚款
func (fc *FineController) Assess(c *gin.Context) {
	var in struct {
		MemberID string          `json:"memberId" binding:"required"`
		LoanID   string          `json:"loanId"`
		Type     models.FineType `json:"type" binding:"required"`
		Amount   decimal.Decimal `json:"amount"`
		Notes    string          `json:"notes"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	if !validIDs(in.MemberID) || (in.LoanID != "" && !validIDs(in.LoanID)) {
		badRequest(c, "invalid memberId or loanId")
		return
	}
	var f *models.Fine
	err := fc.mutate(c, "AssessFine", func(ctx context.Context) (err error) {
		f, err = fc.Svc.AssessFine(ctx, circulation.AssessRequest{
			MemberID: in.MemberID, LoanID: in.LoanID, Type: in.Type, Amount: in.Amount, Notes: in.Notes,
		})
		return err
	})
	if err != nil {
		fc.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, f)
}
