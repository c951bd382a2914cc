package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body is the standard API response envelope. Code is a stable machine-readable
// error kind the web client switches on; Error is the human message.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// Error codes shared by handlers.
const (
	CodeValidation       = "validation"
	CodeUnauthorized     = "unauthorized"
	CodeForbidden        = "forbidden"
	CodeNotFound         = "not_found"
	CodeConflict         = "conflict"
	CodeTimedOut         = "timed_out"
	CodePermissionDenied = "permission_denied"
	CodeDevice           = "device_error"
	CodeUnavailable      = "unavailable"
	CodeInternal         = "internal"
)

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends a failure envelope with an explicit status and code.
func Error(c *gin.Context, status int, code, msg string) {
	c.JSON(status, Body{Success: false, Error: msg, Code: code})
}

func BadRequest(c *gin.Context, msg string)   { Error(c, http.StatusBadRequest, CodeValidation, msg) }
func Unauthorized(c *gin.Context, msg string) { Error(c, http.StatusUnauthorized, CodeUnauthorized, msg) }
func Forbidden(c *gin.Context, msg string)    { Error(c, http.StatusForbidden, CodeForbidden, msg) }
func NotFound(c *gin.Context, msg string)     { Error(c, http.StatusNotFound, CodeNotFound, msg) }
func Conflict(c *gin.Context, msg string)     { Error(c, http.StatusConflict, CodeConflict, msg) }
func Internal(c *gin.Context, msg string)     { Error(c, http.StatusInternalServerError, CodeInternal, msg) }

// TooManyRequests sends 429, used for chat sends from a timed-out user.
func TooManyRequests(c *gin.Context, msg string) {
	Error(c, http.StatusTooManyRequests, CodeTimedOut, msg)
}

// ServiceUnavailable sends 503. Clients may retry.
func ServiceUnavailable(c *gin.Context, msg string) {
	Error(c, http.StatusServiceUnavailable, CodeUnavailable, msg)
}
