package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"library_circulation/app"
	"library_circulation/circulation"
	"library_circulation/db"
)

type AdminController struct{ *Srv }

func NewAdminController(s *Srv) *AdminController { return &AdminController{Srv: s} }

// POST /admin/sweeps/:job  job = overdue | pickups | availability | all
func (ac *AdminController) RunSweep(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		reps []circulation.SweepReport
		rep  circulation.SweepReport
		err  error
	)
	switch c.Param("job") {
	case "overdue":
		rep, err = ac.Svc.MarkOverdue(ctx)
	case "pickups":
		rep, err = ac.Svc.ExpirePickups(ctx)
	case "availability":
		rep, err = ac.Svc.FulfillWaiting(ctx)
	case "all":
		reps = app.SweepOnce(ctx, ac.Svc, ac.Log)
	default:
		badRequest(c, "unknown sweep job")
		return
	}
	if err != nil {
		ac.fail(c, err)
		return
	}
	if reps == nil {
		reps = []circulation.SweepReport{rep}
	}
	c.JSON(http.StatusOK, app.H{"reports": reps})
}

// POST /admin/reconcile?repair=true
func (ac *AdminController) Reconcile(c *gin.Context) {
	repair, _ := strconv.ParseBool(c.DefaultQuery("repair", "false"))
	drifts, err := ac.Svc.Reconcile(c.Request.Context(), repair)
	if err != nil {
		ac.fail(c, err)
		return
	}
	if drifts == nil {
		drifts = []circulation.Drift{}
	}
	c.JSON(http.StatusOK, app.H{"drifts": drifts, "repaired": repair})
}

// GET /admin/copies?q=&status=&page=&size=
func (ac *AdminController) Copies(c *gin.Context) {
	if ac.Repo == nil {
		c.JSON(http.StatusNotImplemented, app.H{"error": "copy overview requires the postgres store"})
		return
	}
	p := pageFrom(c)
	res, err := ac.Repo.ListCopiesWithCurrentLoan(c.Request.Context(), db.AdminCopiesQuery{
		Q: c.Query("q"), Status: c.Query("status"), Page: p.Page, Size: p.Size,
	})
	if err != nil {
		ac.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /admin/audit?entityType=loan&entityId=
func (ac *AdminController) Audit(c *gin.Context) {
	if ac.Repo == nil {
		c.JSON(http.StatusNotImplemented, app.H{"error": "audit log requires the postgres store"})
		return
	}
	res, err := ac.Repo.AuditHistory(c.Request.Context(), c.Query("entityType"), c.Query("entityId"), pageFrom(c))
	if err != nil {
		ac.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /admin/notifications?limit=50  队列中待发送的通知（只读）
func (ac *AdminController) Notifications(c *gin.Context) {
	if ac.Outbox == nil {
		c.JSON(http.StatusNotImplemented, app.H{"error": "notification queue requires redis"})
		return
	}
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	if err != nil || limit <= 0 || limit > 500 {
		badRequest(c, "limit must be between 1 and 500")
		return
	}
	msgs, err := ac.Outbox.Pending(c.Request.Context(), limit)
	if err != nil {
		ac.fail(c, circulation.Transient("read notification queue", err))
		return
	}
	c.JSON(http.StatusOK, app.H{"items": msgs})
}
