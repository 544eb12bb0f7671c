package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"formfiller/internal/models"
	"formfiller/pkg/database"
	"formfiller/pkg/response"
	"formfiller/pkg/utils"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required,min=3"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	user, err := h.users(c.Request.Context(), req.Username)
	if err != nil {
		if errors.Is(err, database.ErrUnknownUser) {
			response.Unauthorized(c, "invalid username or password")
		} else {
			h.log.Error("user lookup failed", zap.Error(err))
			response.InternalServerError(c, "user lookup failed")
		}
		return
	}

	if !utils.CheckPassword(req.Password, user.Password) {
		response.Unauthorized(c, "invalid username or password")
		return
	}

	if user.Status != 1 {
		response.Forbidden(c, "account is disabled")
		return
	}

	token, err := h.tokens.GenerateToken(user.ID, user.Username)
	if err != nil {
		response.InternalServerError(c, "failed to issue token")
		return
	}

	h.log.Info("user logged in", zap.String("username", user.Username))
	response.SuccessWithMessage(c, "login successful", LoginResponse{
		Token: token,
		User:  *user,
	})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	response.Success(c, gin.H{
		"status":    "healthy",
		"timestamp": h.now().Unix(),
		"uptime":    h.now().Sub(h.started).String(),
		"sessions":  len(h.manager.Sessions()),
	})
}
