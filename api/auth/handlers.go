package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/killallgit/audiolingu-api/api/types"
	"github.com/killallgit/audiolingu-api/internal/services/auth"
	"github.com/killallgit/audiolingu-api/internal/services/profiles"
	apperrors "github.com/killallgit/audiolingu-api/pkg/errors"
	"github.com/killallgit/audiolingu-api/pkg/logger"
)

// Handler manages auth endpoints
type Handler struct {
	verifier types.TokenVerifier
	users    types.UserService
	log      *logger.Logger
	skipAuth *auth.Claims
}

// HandlerOption configures the handler
type HandlerOption func(*Handler)

// WithSkipAuth treats every request as coming from the given claims.
// Only for local development.
func WithSkipAuth(claims *auth.Claims) HandlerOption {
	return func(h *Handler) {
		h.skipAuth = claims
	}
}

// NewHandler creates a new auth handler
func NewHandler(verifier types.TokenVerifier, users types.UserService, log *logger.Logger, opts ...HandlerOption) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	h := &Handler{verifier: verifier, users: users, log: log}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Me returns the caller's profile
// @Summary Get current user
// @Description Profile and learning settings of the authenticated caller
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} types.ProfileResponse
// @Failure 401 {object} types.ErrorResponse
// @Router /api/v1/me [get]
func (h *Handler) Me(c *gin.Context) {
	userID, ok := types.RequireUserID(c)
	if !ok {
		return
	}

	snap, err := h.users.LoadSnapshot(c.Request.Context(), userID)
	if err != nil {
		types.SendError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, types.ProfileResponse{
		BaseResponse: types.BaseResponse{Status: types.StatusOK},
		Profile:      types.FromSnapshot(snap),
	})
}

// UpdateSettings changes the caller's learning settings
// @Summary Update settings
// @Description Partial update of language, level, duration, voice, daily opt-in, email opt-out and interests
// @Tags auth
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param settings body types.SettingsRequest true "Settings to change"
// @Success 200 {object} types.ProfileResponse
// @Failure 400 {object} types.ErrorResponse
// @Failure 401 {object} types.ErrorResponse
// @Router /api/v1/me/settings [put]
func (h *Handler) UpdateSettings(c *gin.Context) {
	userID, ok := types.RequireUserID(c)
	if !ok {
		return
	}

	var req types.SettingsRequest
	if !types.BindJSONOrError(c, &req) {
		return
	}

	snap, err := h.users.UpdateSettings(c.Request.Context(), userID, req.ToSettingsUpdate())
	if err != nil {
		types.SendError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, types.ProfileResponse{
		BaseResponse: types.BaseResponse{Status: types.StatusOK, Message: "Settings updated"},
		Profile:      types.FromSnapshot(snap),
	})
}

// AuthMiddleware validates bearer tokens and resolves the caller's user row
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := h.skipAuth
		if claims == nil {
			token, ok := bearerToken(c.GetHeader("Authorization"))
			if !ok {
				abortUnauthorized(c, "Authorization header required")
				return
			}

			var err error
			claims, err = h.verifier.ValidateToken(c.Request.Context(), token)
			if err != nil {
				msg := "Invalid token"
				if errors.Is(err, auth.ErrTokenExpired) {
					msg = "Token expired"
				}
				abortUnauthorized(c, msg)
				return
			}
		}

		user, err := h.users.EnsureUser(c.Request.Context(), profiles.Identity{
			Subject: claims.Subject,
			Email:   claims.Email,
			Name:    claims.DisplayName(),
		})
		if err != nil {
			h.log.Error("Failed to resolve user", "subject", claims.Subject, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, types.ErrorResponse{
				Status:  types.StatusError,
				Message: "Failed to resolve user",
				Error:   string(apperrors.ErrCodeInternal),
			})
			return
		}

		c.Set(types.ContextClaims, claims)
		c.Set(types.ContextUserID, user.ID)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, types.ErrorResponse{
		Status:  types.StatusError,
		Message: message,
		Error:   string(apperrors.ErrCodeUnauthorized),
	})
}

// RegisterRoutes registers the profile routes on an authenticated group
func RegisterRoutes(router *gin.RouterGroup, h *Handler) {
	router.GET("/me", h.Me)
	router.PUT("/me/settings", h.UpdateSettings)
}
