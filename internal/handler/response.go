package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"absensi/internal/apperr"
)

type response struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    any               `json:"data,omitempty"`
	Code    string            `json:"code,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func jsonOK(c *gin.Context, status int, message string, data any) {
	if strings.TrimSpace(message) == "" {
		message = "ok"
	}
	c.JSON(status, response{Success: true, Message: message, Data: data})
}

func (h *Handler) jsonError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	msg := err.Error()
	if kind == apperr.KindInternal {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		msg = "internal server error"
	}
	c.JSON(status, response{Success: false, Message: msg, Code: apperr.CodeOf(err)})
}

// bindError reports a request body that failed to decode or validate.
func bindError(c *gin.Context, err error) {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, response{Success: false, Message: "invalid request body", Code: "invalid_request"})
		return
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = fe.Tag()
	}
	c.JSON(http.StatusBadRequest, response{Success: false, Message: "validation failed", Code: "validation_failed", Errors: fields})
}
