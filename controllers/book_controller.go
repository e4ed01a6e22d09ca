package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"library_circulation/app"
	"library_circulation/circulation"
	"library_circulation/models"
)

type BookController struct{ *Srv }

func NewBookController(s *Srv) *BookController { return &BookController{Srv: s} }

// POST /api/books
func (bc *BookController) Create(c *gin.Context) {
	var in struct {
		ISBN   string `json:"isbn"`
		Title  string `json:"title" binding:"required"`
		Author string `json:"author"`
		Copies int    `json:"copies"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	var (
		book   *models.Book
		copies []models.BookCopy
	)
	err := bc.mutate(c, "AddBook", func(ctx context.Context) (err error) {
		book, copies, err = bc.Svc.AddBook(ctx, circulation.AddBookRequest{
			ISBN: in.ISBN, Title: in.Title, Author: in.Author, Copies: in.Copies,
		})
		return err
	})
	if err != nil {
		bc.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, app.H{"book": book, "copies": copies})
}

// GET /api/books?isbn=
func (bc *BookController) List(c *gin.Context) {
	res, err := bc.Svc.ListBooks(c.Request.Context(), circulation.BookFilter{ISBN: c.Query("isbn")}, pageFrom(c))
	if err != nil {
		bc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /api/books/:id
func (bc *BookController) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	d, err := bc.Svc.GetBook(c.Request.Context(), id)
	if err != nil {
		bc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// GET /api/books/:id/availability
func (bc *BookController) Availability(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	avail, err := bc.Svc.BookAvailable(c.Request.Context(), id)
	if err != nil {
		bc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"bookId": id, "available": avail})
}

// GET /api/books/:id/queue
func (bc *BookController) Queue(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	q, err := bc.Svc.Queue(c.Request.Context(), id)
	if err != nil {
		bc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": q})
}

// POST /api/books/:id/copies
func (bc *BookController) AddCopies(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in struct {
		Count int `json:"count" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	var copies []models.BookCopy
	err := bc.mutate(c, "AddCopies", func(ctx context.Context) (err error) {
		copies, err = bc.Svc.AddCopies(ctx, id, in.Count)
		return err
	})
	if err != nil {
		bc.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, app.H{"copies": copies})
}

// DELETE /api/books/:id
func (bc *BookController) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := bc.mutate(c, "DeleteBook", func(ctx context.Context) error {
		return bc.Svc.DeleteBook(ctx, id)
	}); err != nil {
		bc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// GET /api/copies/:id/availability
func (bc *BookController) CopyAvailability(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	avail, err := bc.Svc.CopyAvailable(c.Request.Context(), id)
	if err != nil {
		bc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"copyId": id, "available": avail})
}

// PUT /api/copies/:id/status
func (bc *BookController) SetCopyStatus(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in struct {
		Status models.CopyStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	var cp *models.BookCopy
	err := bc.mutate(c, "SetCopyStatus", func(ctx context.Context) (err error) {
		cp, err = bc.Svc.SetCopyStatus(ctx, id, in.Status)
		return err
	})
	if err != nil {
		bc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cp)
}
