package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"library_circulation/app"
	"library_circulation/circulation"
	"library_circulation/models"
)

type ReservationController struct{ *Srv }

func NewReservationController(s *Srv) *ReservationController {
	return &ReservationController{Srv: s}
}

// POST /api/reservations
func (rc *ReservationController) Reserve(c *gin.Context) {
	var in struct {
		MemberID string `json:"memberId" binding:"required"`
		BookID   string `json:"bookId" binding:"required"`
		Notes    string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	if !validIDs(in.MemberID, in.BookID) {
		badRequest(c, "invalid memberId or bookId")
		return
	}
	var r *models.Reservation
	err := rc.mutate(c, "Reserve", func(ctx context.Context) (err error) {
		r, err = rc.Svc.Reserve(ctx, circulation.ReserveRequest{MemberID: in.MemberID, BookID: in.BookID, Notes: in.Notes})
		return err
	})
	if err != nil {
		rc.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

// GET /api/reservations/:id
func (rc *ReservationController) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	r, err := rc.Svc.GetReservation(c.Request.Context(), id)
	if err != nil {
		rc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// POST /api/reservations/:id/cancel
// 经过员工网关的请求视为员工取消，必须给出原因。
func (rc *ReservationController) Cancel(c *gin.Context) {
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
	staff := c.GetString("staffID") != ""

	var r *models.Reservation
	err := rc.mutate(c, "Cancel", func(ctx context.Context) (err error) {
		r, err = rc.Svc.Cancel(ctx, id, staff, in.Reason)
		return err
	})
	if err != nil {
		rc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// POST /api/books/:id/fulfill
func (rc *ReservationController) Fulfill(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var r *models.Reservation
	err := rc.mutate(c, "Fulfill", func(ctx context.Context) (err error) {
		r, err = rc.Svc.Fulfill(ctx, id)
		return err
	})
	if err != nil {
		rc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"fulfilled": r != nil, "reservation": r})
}
