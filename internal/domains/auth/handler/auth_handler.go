package handler

import (
	"crypto/subtle"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/gin-gonic/gin"

	"licensify-backend/internal/config"
	"licensify-backend/internal/shared/response"
	"licensify-backend/pkg/jwt"
	"licensify-backend/pkg/logger"
)

// AuthHandler issues admin tokens against the operator credentials
// from configuration.
type AuthHandler struct {
	cfg        config.AdminConfig
	jwtManager *jwt.Manager
}

func NewAuthHandler(cfg config.AdminConfig, jwtManager *jwt.Manager) *AuthHandler {
	return &AuthHandler{cfg: cfg, jwtManager: jwtManager}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		response.BadRequest(c, "Email and password are required")
		return
	}

	if h.cfg.Password == "" {
		response.Unauthorized(c, "Admin login is disabled")
		return
	}

	emailOK := subtle.ConstantTimeCompare([]byte(req.Email), []byte(h.cfg.Email)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.cfg.Password)) == 1
	if !emailOK || !passOK {
		logger.Warn("Failed admin login attempt", map[string]interface{}{
			"email": req.Email,
		})
		response.Unauthorized(c, "Invalid credentials")
		return
	}

	token, err := h.jwtManager.GenerateAdminToken("admin", h.cfg.Email, "admin")
	if err != nil {
		logger.Error("Token generation failed", err)
		response.InternalError(c, "Failed to generate token")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"token": token})
}
