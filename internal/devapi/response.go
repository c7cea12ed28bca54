package devapi

import (
	stderrors "errors"
	"net/http"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jafarshop/storefront/pkg/errors"
)

type envelope struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    interface{}    `json:"data,omitempty"`
	Error   *envelopeError `json:"error,omitempty"`
	Meta    *meta          `json:"meta,omitempty"`
}

type envelopeError struct {
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type meta struct {
	NextCursor string `json:"nextCursor,omitempty"`
	HasMore    bool   `json:"hasMore"`
	Total      int    `json:"total,omitempty"`
}

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, envelope{Success: true, Data: data})
}

func respondMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, envelope{Success: true, Message: message})
}

func respondPage(c *gin.Context, data interface{}, m meta) {
	c.JSON(http.StatusOK, envelope{Success: true, Data: data, Meta: &m})
}

func fail(c *gin.Context, status int, code, message string, fields map[string]string) {
	c.AbortWithStatusJSON(status, envelope{
		Success: false,
		Error:   &envelopeError{Code: code, Message: message, Fields: fields},
	})
}

// handleError maps domain errors onto the envelope. Anything unrecognised is
// logged and reported as a 500 without details.
func handleError(c *gin.Context, err error, logger *zap.Logger) {
	var (
		notFound   *errors.ErrNotFound
		validation *errors.ErrValidation
		transition *errors.ErrInvalidStateTransition
		unauth     *errors.ErrUnauthorized
		apiErr     *errors.APIError
	)

	switch {
	case stderrors.As(err, &notFound):
		fail(c, http.StatusNotFound, "NOT_FOUND", notFound.Error(), nil)
	case stderrors.As(err, &validation):
		fail(c, http.StatusBadRequest, "VALIDATION_ERROR", validation.Message,
			map[string]string{validation.Field: validation.Message})
	case stderrors.As(err, &transition):
		fail(c, http.StatusConflict, "INVALID_STATE", transition.Error(), nil)
	case stderrors.As(err, &unauth):
		fail(c, http.StatusUnauthorized, "UNAUTHORIZED", unauth.Error(), nil)
	case stderrors.As(err, &apiErr):
		fail(c, apiErr.Status, apiErr.Code, apiErr.Message, apiErr.Fields)
	default:
		logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", nil)
	}
}

// bindJSON binds the body and reports binding failures per field
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[lowerFirst(fe.Field())] = fe.Tag()
			}
			fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request", fields)
			return false
		}
		fail(c, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return false
	}
	return true
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
