package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketchat/internal/auth"
	"github.com/vovakirdan/marketchat/internal/core"
	"github.com/vovakirdan/marketchat/internal/proto"
)

// APIHandlers provides HTTP handlers for authentication endpoints.
type APIHandlers struct {
	authService *auth.Service
	log         *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(authService *auth.Service, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		authService: authService,
		log:         logger,
	}
}

// SignUpRequest represents the sign-up request body.
type SignUpRequest struct {
	Name     string `json:"name" binding:"required,max=64"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// ErrorResponse represents an error response body.
type ErrorResponse = proto.ErrorResponse

// SignUp handles account creation.
// POST /api/auth/signup
func (h *APIHandlers) SignUp(c *gin.Context) {
	var req SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid signup request")
		writeError(c, http.StatusBadRequest, core.ErrCodeBadRequest, "invalid request body")
		return
	}

	token, err := h.authService.SignUp(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserExists):
			writeError(c, http.StatusConflict, core.ErrCodeConflict, "user already exists")
		case errors.Is(err, auth.ErrInvalidName), errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrInvalidPassword):
			writeError(c, http.StatusBadRequest, core.ErrCodeBadRequest, err.Error())
		default:
			h.log.Error().Err(err).Str("email", req.Email).Msg("failed to sign up")
			internalError(c)
		}
		return
	}

	h.log.Info().Str("email", req.Email).Msg("user signed up")
	c.JSON(http.StatusCreated, proto.TokenResponse{Token: token})
}

// Login handles email and password login.
// POST /api/auth/login
func (h *APIHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid login request")
		writeError(c, http.StatusBadRequest, core.ErrCodeBadRequest, "invalid request body")
		return
	}

	token, err := h.authService.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(c, http.StatusUnauthorized, core.ErrCodeUnauthorized, "invalid credentials")
			return
		}
		h.log.Error().Err(err).Str("email", req.Email).Msg("failed to login user")
		internalError(c)
		return
	}

	h.log.Info().Str("email", req.Email).Msg("user logged in")
	c.JSON(http.StatusOK, proto.TokenResponse{Token: token})
}
