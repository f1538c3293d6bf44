package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"kolcrm/internal/core"
)

// Result is the response envelope. Code 0 means success.
type Result struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

// Error codes carried in Result.Code.
const (
	CodeOK           = 0
	CodeBadRequest   = 400001
	CodeUnauthorized = 401001
	CodeNotFound     = 404001
	CodeConflict     = 409001
	CodeSystemError  = 500001
)

func ok(ctx *gin.Context, data any) {
	ctx.JSON(http.StatusOK, Result{Code: CodeOK, Msg: "ok", Data: data})
}

func fail(ctx *gin.Context, status, code int, msg string) {
	ctx.AbortWithStatusJSON(status, Result{Code: code, Msg: msg})
}

// failErr maps service errors to HTTP responses. Unexpected errors are logged
// and hidden behind a generic message.
func (h *Handler) failErr(ctx *gin.Context, err error) {
	var nf core.ErrNotFound
	var rv core.RuleViolationError
	switch {
	case errors.As(err, &nf):
		fail(ctx, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, core.ErrInvalidInput):
		fail(ctx, http.StatusBadRequest, CodeBadRequest, err.Error())
	case errors.As(err, &rv):
		fail(ctx, http.StatusConflict, CodeConflict, err.Error())
	default:
		h.logger.Error("request failed", "path", ctx.FullPath(), "error", err)
		fail(ctx, http.StatusInternalServerError, CodeSystemError, "系统错误")
	}
}
