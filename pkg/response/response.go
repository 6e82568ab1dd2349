package response

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bookhub-api/internal/models"
	appErrors "github.com/noah-isme/bookhub-api/pkg/errors"
)

// Envelope represents the common response contract.
type Envelope struct {
	Data       interface{}            `json:"data,omitempty"`
	Error      *appErrors.Error       `json:"error,omitempty"`
	Pagination *models.Pagination     `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// RetryAfterKey lets handlers hint the lockout window to Error.
const RetryAfterKey = "retry_after_seconds"

// JSON sends a success response with optional pagination metadata.
func JSON(c *gin.Context, status int, data interface{}, pagination *models.Pagination, meta ...map[string]interface{}) {
	noStore(c)
	envelope := Envelope{Data: data, Pagination: pagination}
	if len(meta) > 0 && meta[0] != nil {
		envelope.Meta = meta[0]
	}
	c.JSON(status, envelope)
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data, nil)
}

// Error sends an error response converting the error to the common structure.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	noStore(c)
	switch appErr.Status {
	case http.StatusUnauthorized:
		c.Header("WWW-Authenticate", `Bearer realm="bookhub"`)
	case http.StatusTooManyRequests:
		if v, ok := c.Get(RetryAfterKey); ok {
			if secs, ok := v.(int); ok && secs > 0 {
				c.Header("Retry-After", strconv.Itoa(secs))
			}
		}
	}
	c.JSON(appErr.Status, Envelope{Error: public(appErr)})
}

// Abort renders err and stops the handler chain.
func Abort(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Attachment streams a generated file.
func Attachment(c *gin.Context, filename, contentType string, body []byte) {
	noStore(c)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, body)
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}

// public hides internal causes from 5xx bodies.
func public(e *appErrors.Error) *appErrors.Error {
	if e.Status < http.StatusInternalServerError {
		return e
	}
	return appErrors.New(e.Code, e.Status, appErrors.ErrInternal.Message)
}
