package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"library_circulation/app"
	"library_circulation/controllers"
)

func RegisterRoutes(r *gin.Engine, a *app.App) {
	Register(r, controllers.GetSrv(a))
}

// Register mounts every route on r; split from RegisterRoutes so tests can
// pass a Srv built without an App.
func Register(r *gin.Engine, s *controllers.Srv) {
	// 控制器
	memberCtl := controllers.NewMemberController(s)
	bookCtl := controllers.NewBookController(s)
	loanCtl := controllers.NewLoanController(s)
	resCtl := controllers.NewReservationController(s)
	fineCtl := controllers.NewFineController(s)
	adminCtl := controllers.NewAdminController(s)

	// 复用的中间件
	staffMW := app.StaffOnly()

	r.Use(app.StaffIdentity())
	r.GET("/healthz", func(c *app.Ctx) { c.JSON(http.StatusOK, app.H{"ok": true}) })

	api := r.Group("/api")

	// ------------------------------
	// 会员
	// ------------------------------
	members := api.Group("/members")
	{
		members.POST("", memberCtl.Register)
		members.GET("/:id", memberCtl.Get)
		members.GET("/:id/eligibility", memberCtl.Eligibility) // ?purpose=borrow|renew|reserve
		members.GET("/:id/loans", memberCtl.Loans)
		members.GET("/:id/fines", memberCtl.Fines)
	}
	membersAdmin := api.Group("/members", staffMW)
	{
		membersAdmin.GET("", memberCtl.List)
		membersAdmin.PUT("/:id/status", memberCtl.SetStatus)
		membersAdmin.DELETE("/:id", memberCtl.Delete)
	}

	// ------------------------------
	// 书目与副本
	// ------------------------------
	books := api.Group("/books")
	{
		books.GET("", bookCtl.List)
		books.GET("/:id", bookCtl.Get)
		books.GET("/:id/availability", bookCtl.Availability)
		books.GET("/:id/queue", bookCtl.Queue)
	}
	booksAdmin := api.Group("/books", staffMW)
	{
		booksAdmin.POST("", bookCtl.Create)
		booksAdmin.POST("/:id/copies", bookCtl.AddCopies)
		booksAdmin.DELETE("/:id", bookCtl.Delete)
		booksAdmin.POST("/:id/fulfill", resCtl.Fulfill)
	}
	api.GET("/copies/:id/availability", bookCtl.CopyAvailability)
	api.PUT("/copies/:id/status", staffMW, bookCtl.SetCopyStatus)

	// ------------------------------
	// 借还
	// ------------------------------
	loans := api.Group("/loans")
	{
		loans.GET("", loanCtl.List) // ?status=&memberId=&bookId=&copyId=&overdue=true
		loans.POST("", loanCtl.Checkout)
		loans.POST("/bulk", loanCtl.BulkCheckout)
		loans.POST("/returns", loanCtl.BulkReturn)
		loans.GET("/:id", loanCtl.Get)
		loans.GET("/:id/fine", loanCtl.Fine)
		loans.POST("/:id/return", loanCtl.Return)
		loans.POST("/:id/renew", loanCtl.Renew)
		loans.POST("/:id/lost", staffMW, loanCtl.ReportLost)
	}

	// ------------------------------
	// 预约
	// ------------------------------
	res := api.Group("/reservations")
	{
		res.POST("", resCtl.Reserve)
		res.GET("/:id", resCtl.Get)
		res.POST("/:id/cancel", resCtl.Cancel)
	}

	// ------------------------------
	// 罚款
	// ------------------------------
	fines := api.Group("/fines")
	{
		fines.POST("/:id/pay", fineCtl.Pay)
		fines.POST("/:id/waive", staffMW, fineCtl.Waive)
		fines.POST("", staffMW, fineCtl.Assess)
	}

	// ------------------------------
	// 运维（仅员工）
	// ------------------------------
	admin := r.Group("/admin", staffMW)
	{
		admin.POST("/sweeps/:job", adminCtl.RunSweep)
		admin.POST("/reconcile", adminCtl.Reconcile) // ?repair=true
		admin.GET("/copies", adminCtl.Copies)
		admin.GET("/audit", adminCtl.Audit)
		admin.GET("/notifications", adminCtl.Notifications)
	}
}
