// controllers/srv.go
package controllers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"library_circulation/app"
	"library_circulation/circulation"
	"library_circulation/db"
	"library_circulation/notify"
	"library_circulation/retry"
)

// Outbox 查看尚未被消费的会员通知。
type Outbox interface {
	Pending(ctx context.Context, limit int64) ([]notify.Message, error)
}

type Srv struct {
	Svc    *circulation.Service
	Repo   *db.Repo // nil 时管理视图不可用
	Outbox Outbox   // nil 时通知队列视图不可用
	Log    *slog.Logger
}

func GetSrv(a *app.App) *Srv {
	s := &Srv{Svc: a.Service, Repo: a.Repo, Log: a.Log}
	if a.Outbox != nil {
		s.Outbox = a.Outbox
	}
	return s
}

// --- helpers ---

// statusOf 错误类型 -> HTTP 状态码
func statusOf(err error) int {
	switch circulation.KindOf(err) {
	case circulation.KindNotFound:
		return http.StatusNotFound
	case circulation.KindPrecondition:
		return http.StatusUnprocessableEntity
	case circulation.KindConflict:
		return http.StatusConflict
	case circulation.KindTransient:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Srv) fail(c *gin.Context, err error) {
	body := app.H{"error": err.Error()}
	if k := circulation.KindOf(err); k != 0 {
		body["kind"] = k.String()
		body["reason"] = circulation.ReasonOf(err)
	}
	c.JSON(statusOf(err), body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, app.H{"error": msg})
}

// bindOptional 请求体可省略：空 body 视为未提供字段，格式错误返回 400
func bindOptional(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err.Error())
		return false
	}
	return true
}

// mutate 写操作统一入口：Conflict 自动重试一次
func (s *Srv) mutate(c *gin.Context, op string, fn func(ctx context.Context) error) error {
	return retry.OnConflict(c.Request.Context(), fn, retry.WithLogger(s.Log, op))
}

// idParam 读取路径参数并校验 UUID 格式
func idParam(c *gin.Context, name string) (string, bool) {
	id := c.Param(name)
	if id == "" {
		badRequest(c, name+" is required")
		return "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		badRequest(c, "invalid "+name)
		return "", false
	}
	return id, true
}

func validIDs(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}

func pageFrom(c *gin.Context) circulation.PageRequest {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	return circulation.PageRequest{Page: page, Size: size}.Normalize()
}
