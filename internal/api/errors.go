package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/crosspost/crosspost/internal/ai"
	"github.com/crosspost/crosspost/internal/errs"
	"github.com/crosspost/crosspost/internal/platform"
)

// Error represents an API error
type Error struct {
	Code    int    `json:"-"`
	Message string `json:"message"`
}

// NewError creates a new API error
func NewError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

// asAPIError maps service and platform failures onto HTTP responses
func asAPIError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, errs.ErrValidation):
		return NewError(http.StatusBadRequest, strings.TrimPrefix(err.Error(), errs.ErrValidation.Error()+": "))
	case errors.Is(err, errs.ErrNotFound):
		return NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrForbidden):
		return NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, errs.ErrAccountUnavailable):
		return NewError(http.StatusConflict, err.Error())
	case errors.Is(err, errs.ErrUnsupported), errors.Is(err, ai.ErrDisabled):
		return NewError(http.StatusNotImplemented, platform.Message(err))
	case errors.Is(err, errs.ErrCredentialExpired), errors.Is(err, errs.ErrCredentialRefreshFailed):
		return NewError(http.StatusUnauthorized, platform.Message(err))
	case errors.Is(err, errs.ErrPlatformRejected), errors.Is(err, errs.ErrTransport):
		return NewError(http.StatusBadGateway, platform.Message(err))
	}
	return NewError(http.StatusInternalServerError, "Internal server error")
}

// sendError writes err as {"message": ...} and logs server-side failures
func (r *Router) sendError(c *gin.Context, err error) {
	apiErr := asAPIError(err)
	if apiErr.Code >= http.StatusInternalServerError {
		r.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(apiErr.Code, apiErr)
}
