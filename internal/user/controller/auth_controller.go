package controller

import (
	"strings"
	"time"

	commonmw "ctfoj/internal/common/http/middleware"
	"ctfoj/internal/user/service"
	"ctfoj/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// AuthController handles auth-related HTTP endpoints.
type AuthController struct {
	authService *service.AuthService
}

// NewAuthController creates a new AuthController.
func NewAuthController(authService *service.AuthService) *AuthController {
	return &AuthController{authService: authService}
}

// Login handles user login.
func (h *AuthController) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	result, err := h.authService.Login(c.Request.Context(), service.LoginInput{
		UID:      strings.TrimSpace(req.UID),
		Password: req.Password,
		IP:       c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, AuthResponse{
		AccessToken:     result.AccessToken,
		AccessExpiresAt: result.AccessExpiresAt,
		UID:             result.UID,
		Team:            result.Team,
	})
}

// LoginRequest defines login payload.
type LoginRequest struct {
	UID      string `json:"uid" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse defines auth response payload.
type AuthResponse struct {
	AccessToken     string    `json:"access_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
	UID             string    `json:"uid"`
	Team            string    `json:"team,omitempty"`
}

// Me returns the authenticated uid and its current team.
func (h *AuthController) Me(c *gin.Context) {
	uid := commonmw.CurrentUser(c)
	team, err := h.authService.Profile(c.Request.Context(), uid)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, ProfileResponse{UID: uid, Team: team})
}

// ProfileResponse describes the caller.
type ProfileResponse struct {
	UID  string `json:"uid"`
	Team string `json:"team,omitempty"`
}
