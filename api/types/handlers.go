package types

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/killallgit/audiolingu-api/internal/services/episodes"
	"github.com/killallgit/audiolingu-api/internal/services/jobs"
	"github.com/killallgit/audiolingu-api/internal/services/profiles"
	"github.com/killallgit/audiolingu-api/internal/services/quizzes"
	apperrors "github.com/killallgit/audiolingu-api/pkg/errors"
	"github.com/killallgit/audiolingu-api/pkg/httpx"
	"github.com/killallgit/audiolingu-api/pkg/logger"
)

// Context keys set by the auth middleware
const (
	ContextUserID = "user_id"
	ContextClaims = "claims"
)

// Handler utility functions to reduce duplication across handlers

// ParseUintParam extracts and parses a URL parameter as uint
// Returns the parsed value and sends error response if parsing fails
func ParseUintParam(c *gin.Context, paramName string) (uint, bool) {
	paramStr := c.Param(paramName)
	value, err := strconv.ParseUint(paramStr, 10, 32)
	if err != nil || value == 0 {
		SendBadRequest(c, "Invalid "+paramName)
		return 0, false
	}
	return uint(value), true
}

// QueryInt reads an integer query parameter, returning def when absent or malformed
func QueryInt(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// BindJSONOrError attempts to bind JSON request body to target struct
// Returns false and sends error response if binding fails
func BindJSONOrError(c *gin.Context, target interface{}) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Status:  StatusError,
			Message: "Invalid request body",
			Error:   string(apperrors.ErrCodeValidation),
			Details: err.Error(),
		})
		return false
	}
	return true
}

// CurrentUserID returns the authenticated caller's user id
func CurrentUserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok && id != 0
}

// RequireUserID returns the caller's id or aborts with 401
func RequireUserID(c *gin.Context) (uint, bool) {
	id, ok := CurrentUserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
			Status:  StatusError,
			Message: "Authentication required",
			Error:   string(apperrors.ErrCodeUnauthorized),
		})
	}
	return id, ok
}

// ToAppError maps service errors onto API error codes
func ToAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var statusErr *httpx.StatusError
	var parseErr *httpx.ParseError

	switch {
	case errors.Is(err, episodes.ErrEpisodeNotFound),
		errors.Is(err, quizzes.ErrQuizNotFound),
		errors.Is(err, jobs.ErrJobNotFound),
		errors.Is(err, profiles.ErrUserNotFound):
		return apperrors.Wrap(err, apperrors.ErrCodeNotFound, notFoundMessage(err))
	case errors.Is(err, episodes.ErrNotOwner):
		return apperrors.Wrap(err, apperrors.ErrCodeForbidden, "Episode does not belong to caller")
	case errors.Is(err, episodes.ErrNotReady):
		return apperrors.Wrap(err, apperrors.ErrCodeConflict, "Episode is not ready")
	case errors.Is(err, episodes.ErrInvalidInput),
		errors.Is(err, profiles.ErrInvalidSettings),
		errors.Is(err, profiles.ErrProfileIncomplete),
		errors.Is(err, quizzes.ErrNoTranscript):
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, err.Error())
	case errors.Is(err, quizzes.ErrInvalidQuiz):
		return apperrors.ExternalServiceError("quiz writer", err)
	case errors.As(err, &statusErr):
		return apperrors.ExternalServiceError(statusErr.Service, err)
	case errors.As(err, &parseErr):
		return apperrors.ExternalServiceError(parseErr.Service, err)
	default:
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "Internal server error")
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, quizzes.ErrQuizNotFound):
		return "Quiz not found"
	case errors.Is(err, jobs.ErrJobNotFound):
		return "Job not found"
	case errors.Is(err, profiles.ErrUserNotFound):
		return "User not found"
	default:
		return "Episode not found"
	}
}

// SendError writes the mapped error. Internal errors are logged and their
// cause is not exposed.
func SendError(c *gin.Context, log *logger.Logger, err error) {
	appErr := ToAppError(err)
	code := appErr.GetHTTPCode()
	if code >= http.StatusInternalServerError {
		log.Error("Request failed", "path", c.FullPath(), "code", appErr.Code, "error", err)
	}
	resp := ErrorResponse{
		Status:  StatusError,
		Message: appErr.Message,
		Error:   string(appErr.Code),
	}
	if len(appErr.Details) > 0 && code < http.StatusInternalServerError {
		resp.Details = appErr.Details
	}
	c.JSON(code, resp)
}

// SendBadRequest sends a standardized bad request response
func SendBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Status: StatusError, Message: message, Error: string(apperrors.ErrCodeValidation)})
}

// SendNotFound sends a standardized not found response
func SendNotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Status: StatusError, Message: message, Error: string(apperrors.ErrCodeNotFound)})
}

// SendServiceUnavailable reports a feature whose service is not configured
func SendServiceUnavailable(c *gin.Context, feature string) {
	appErr := apperrors.Unavailable(feature)
	c.JSON(appErr.GetHTTPCode(), ErrorResponse{Status: StatusError, Message: appErr.Message, Error: string(appErr.Code)})
}
