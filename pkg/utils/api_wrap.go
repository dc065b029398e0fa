package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type APIResponse struct {
	Status  string      `json:"status"`
	Code    int         `json:"code"`
	Message string      `json:"message,omitempty"`
	TraceID string      `json:"trace_id,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func traceID(c *gin.Context) string {
	return c.GetString("trace_id")
}

func RespondSuccess(c *gin.Context, data interface{}, message string) {
	RespondWithStatus(c, http.StatusOK, data, message)
}

func RespondWithStatus(c *gin.Context, code int, data interface{}, message string) {
	c.JSON(code, APIResponse{
		Status:  "success",
		Code:    code,
		Message: message,
		TraceID: traceID(c),
		Data:    data,
	})
}

func RespondError(c *gin.Context, code int, message string) {
	respondErrorData(c, code, message, nil)
}

func respondErrorData(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, APIResponse{
		Status:  "error",
		Code:    code,
		Message: message,
		TraceID: traceID(c),
		Data:    data,
	})
}

// HandleServiceError maps service errors to responses. Provider and store
// internals never reach the client.
func HandleServiceError(c *gin.Context, logger *zap.Logger, err error) {
	var (
		validationErr *ValidationError
		creditsErr    *InsufficientCreditsError
		quotaErr      *QuotaExhaustedError
	)

	switch {
	case errors.As(err, &validationErr):
		respondErrorData(c, http.StatusBadRequest, validationErr.Error(), gin.H{
			"field":     validationErr.Field,
			"max_chars": validationErr.MaxChars,
		})
	case errors.Is(err, ErrInvalidInput):
		RespondError(c, http.StatusBadRequest, err.Error())
	case errors.As(err, &creditsErr):
		respondErrorData(c, http.StatusPaymentRequired, "Insufficient credits", gin.H{
			"balance":  creditsErr.Balance,
			"required": creditsErr.Required,
		})
	case errors.As(err, &quotaErr):
		respondErrorData(c, http.StatusTooManyRequests, "Monthly free analysis already used", gin.H{
			"limit": quotaErr.Limit,
			"used":  quotaErr.Used,
		})
	case errors.Is(err, ErrUnauthorized):
		RespondError(c, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, ErrInvalidCredentials):
		RespondError(c, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, ErrAccountNotFound):
		RespondError(c, http.StatusNotFound, "Account not found")
	case errors.Is(err, ErrAnalysisNotFound):
		RespondError(c, http.StatusNotFound, "Analysis not found")
	case errors.Is(err, ErrAccountExists):
		RespondError(c, http.StatusConflict, "Account already exists")
	case errors.Is(err, ErrIdempotencyInProgress):
		RespondError(c, http.StatusConflict, "A request with this idempotency key is still being processed")
	case errors.Is(err, ErrAIProvider):
		logger.Warn("ai provider error", zap.String("trace_id", traceID(c)), zap.Error(err))
		RespondError(c, http.StatusBadGateway, "Analysis could not be processed")
	case errors.Is(err, ErrQueueUnavailable):
		logger.Error("queue error", zap.String("trace_id", traceID(c)), zap.Error(err))
		RespondError(c, http.StatusServiceUnavailable, "Service temporarily unavailable")
	case errors.Is(err, ErrDatabaseError):
		logger.Error("database error", zap.String("trace_id", traceID(c)), zap.Error(err))
		RespondError(c, http.StatusInternalServerError, "Internal server error")
	default:
		logger.Error("unknown error", zap.String("trace_id", traceID(c)), zap.Error(err))
		RespondError(c, http.StatusInternalServerError, "Internal server error")
	}
}
