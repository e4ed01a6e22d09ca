package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"library_circulation/app"
	"library_circulation/circulation"
	"library_circulation/models"
)

type MemberController struct{ *Srv }

func NewMemberController(s *Srv) *MemberController { return &MemberController{Srv: s} }

// POST /api/members
func (mc *MemberController) Register(c *gin.Context) {
	var in struct {
		Name  string `json:"name" binding:"required"`
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	var m *models.Member
	err := mc.mutate(c, "RegisterMember", func(ctx context.Context) (err error) {
		m, err = mc.Svc.RegisterMember(ctx, circulation.RegisterMemberRequest{Name: in.Name, Email: in.Email})
		return err
	})
	if err != nil {
		mc.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// GET /api/members?status=active&email=&page=&size=
func (mc *MemberController) List(c *gin.Context) {
	f := circulation.MemberFilter{Email: c.Query("email")}
	if st := c.Query("status"); st != "" {
		f.Status = []models.MemberStatus{models.MemberStatus(st)}
	}
	res, err := mc.Svc.ListMembers(c.Request.Context(), f, pageFrom(c))
	if err != nil {
		mc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /api/members/:id
func (mc *MemberController) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	m, err := mc.Svc.GetMember(c.Request.Context(), id)
	if err != nil {
		mc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"member": m})
}

// PUT /api/members/:id/status
func (mc *MemberController) SetStatus(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in struct {
		Status models.MemberStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	var m *models.Member
	err := mc.mutate(c, "SetMemberStatus", func(ctx context.Context) (err error) {
		m, err = mc.Svc.SetMemberStatus(ctx, id, in.Status)
		return err
	})
	if err != nil {
		mc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// DELETE /api/members/:id
func (mc *MemberController) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := mc.mutate(c, "DeleteMember", func(ctx context.Context) error {
		return mc.Svc.DeleteMember(ctx, id)
	}); err != nil {
		mc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// GET /api/members/:id/eligibility?purpose=borrow|renew|reserve
func (mc *MemberController) Eligibility(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	purpose := circulation.Purpose(c.DefaultQuery("purpose", string(circulation.PurposeBorrow)))
	switch purpose {
	case circulation.PurposeBorrow, circulation.PurposeRenew, circulation.PurposeReserve:
	default:
		badRequest(c, "purpose must be borrow, renew or reserve")
		return
	}
	res, err := mc.Svc.Eligibility(c.Request.Context(), id, purpose)
	if err != nil {
		mc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /api/members/:id/loans?status=active
func (mc *MemberController) Loans(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	f := circulation.LoanFilter{MemberID: id}
	if st := c.Query("status"); st != "" {
		f.Status = []models.LoanStatus{models.LoanStatus(st)}
	}
	res, err := mc.Svc.ListLoans(c.Request.Context(), f, pageFrom(c))
	if err != nil {
		mc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /api/members/:id/fines?status=pending
func (mc *MemberController) Fines(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var status []models.FineStatus
	if st := c.Query("status"); st != "" {
		status = []models.FineStatus{models.FineStatus(st)}
	}
	res, err := mc.Svc.MemberFines(c.Request.Context(), id, status, pageFrom(c))
	if err != nil {
		mc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
