// Package responses writes the JSON envelopes and problem documents shared
// by the console handlers.
package responses

import (
	"net/http"
	"time"

	"github.com/Aidin1998/txconsole/pkg/errors"
	"github.com/gin-gonic/gin"
)

// TraceIDKey is the gin context key holding the request trace id
const TraceIDKey = "trace_id"

// StandardResponse represents a standard API response format
type StandardResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// PaginatedResponse is the list envelope. Partial and UnavailableSources are
// only set when a degraded source was left out of the page.
type PaginatedResponse struct {
	StandardResponse
	Pagination         *PaginationMeta `json:"pagination"`
	Partial            bool            `json:"partial,omitempty"`
	UnavailableSources []string        `json:"unavailableSources,omitempty"`
}

// PaginationMeta contains pagination metadata
type PaginationMeta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// Success sends a 200 response
func Success(c *gin.Context, data interface{}, message ...string) {
	c.JSON(http.StatusOK, standard(c, data, message...))
}

// Created sends a 201 Created response
func Created(c *gin.Context, data interface{}, message ...string) {
	c.JSON(http.StatusCreated, standard(c, data, message...))
}

func standard(c *gin.Context, data interface{}, message ...string) StandardResponse {
	response := StandardResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
		TraceID:   getTraceID(c),
	}
	if len(message) > 0 {
		response.Message = message[0]
	}
	return response
}

// Paginated sends a paginated list
func Paginated(c *gin.Context, data interface{}, pagination *PaginationMeta, unavailable []string) {
	c.JSON(http.StatusOK, PaginatedResponse{
		StandardResponse:   standard(c, data),
		Pagination:         pagination,
		Partial:            len(unavailable) > 0,
		UnavailableSources: unavailable,
	})
}

// Error sends an error response using RFC 7807 format
func Error(c *gin.Context, problemDetails *errors.ProblemDetails) {
	if problemDetails.TraceID == "" {
		if traceID := getTraceID(c); traceID != "" {
			problemDetails.WithTraceID(traceID)
		}
	}
	if problemDetails.Extra == nil {
		problemDetails.WithExtra("timestamp", time.Now().UTC().Format(time.RFC3339))
	}

	c.Header("Content-Type", "application/problem+json")
	c.AbortWithStatusJSON(problemDetails.Status, problemDetails)
}

// FromError converts any error into a problem response for the current path
func FromError(c *gin.Context, err error) {
	Error(c, errors.ToProblemDetails(err, c.Request.URL.Path))
}

// BadRequest sends a 400 Bad Request response
func BadRequest(c *gin.Context, detail string, validationErrors ...errors.ValidationError) {
	problemDetails := errors.NewValidationError(detail, c.Request.URL.Path)
	if len(validationErrors) > 0 {
		problemDetails.WithValidationErrors(validationErrors)
	}
	Error(c, problemDetails)
}

// Unauthorized sends a 401 Unauthorized response
func Unauthorized(c *gin.Context, detail string) {
	Error(c, errors.NewUnauthorizedError(detail, c.Request.URL.Path))
}

// Forbidden sends a 403 Forbidden response
func Forbidden(c *gin.Context, detail string) {
	Error(c, errors.NewForbiddenError(detail, c.Request.URL.Path))
}

// NotFound sends a 404 Not Found response
func NotFound(c *gin.Context, detail string) {
	Error(c, errors.NewNotFoundError(detail, c.Request.URL.Path))
}

// ServiceUnavailable sends a 503 response
func ServiceUnavailable(c *gin.Context, detail string) {
	Error(c, errors.NewUpstreamDegradedError(detail, c.Request.URL.Path))
}

func getTraceID(c *gin.Context) string {
	if traceID, exists := c.Get(TraceIDKey); exists {
		if id, ok := traceID.(string); ok {
			return id
		}
	}
	return c.GetHeader("X-Trace-ID")
}

// CreatePaginationMeta creates pagination metadata. An empty result has zero pages.
func CreatePaginationMeta(page, limit int, total int64) *PaginationMeta {
	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	return &PaginationMeta{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}
}
