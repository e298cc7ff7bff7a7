package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/huangang/teamsync/internal/services"
	"github.com/huangang/teamsync/pkg/response"
)

type AuthHandler struct {
	authService *services.AuthService
}

func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Login handles user login
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.authService.Login(&req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidRole) {
			response.BadRequest(c, err.Error())
			return
		}
		response.ServerError(c, "failed to issue token")
		return
	}

	response.Success(c, resp)
}
