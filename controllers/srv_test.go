package controllers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"library_circulation/circulation"
)

func Test_statusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{circulation.ErrLoanNotFound, http.StatusNotFound},
		{circulation.ErrCopyNotAvailable, http.StatusUnprocessableEntity},
		{circulation.Conflict("row locked", nil), http.StatusConflict},
		{circulation.Transient("pool exhausted", nil), http.StatusServiceUnavailable},
		{circulation.ErrDataInconsistency, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusOf(tc.err), tc.err.Error())
	}
}

func Test_fail_Body(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	(&Srv{}).fail(c, circulation.Transient("storage operation timed out", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"error":"storage operation timed out","kind":"transient","reason":"StorageUnavailable"}`, w.Body.String())
}

func Test_bulkStatus(t *testing.T) {
	assert.Equal(t, http.StatusCreated, bulkStatus(0, 3, http.StatusCreated))
	assert.Equal(t, http.StatusMultiStatus, bulkStatus(1, 3, http.StatusCreated))
	assert.Equal(t, http.StatusUnprocessableEntity, bulkStatus(3, 3, http.StatusCreated))
}
