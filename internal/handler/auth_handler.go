package handler

import (
	"errors"
	"net/http"

	"github.com/SergeiKhy/shortlink/internal/auth"
	"github.com/SergeiKhy/shortlink/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandler struct {
	service service.AuthService
	logger  *zap.Logger
}

func NewAuthHandler(service service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{service: service, logger: logger}
}

// CredentialsRequest пароль приходит в base64
type CredentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	UserID  int64  `json:"userId"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Требуются username и password",
		})
		return
	}

	password, err := auth.DecodeTransitPassword(req.Password)
	if err != nil {
		writePasswordError(c, err)
		return
	}

	result, err := h.service.Register(c.Request.Context(), req.Username, password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidUsername):
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_username",
				Message: err.Error(),
			})
		case errors.Is(err, service.ErrUserExists):
			c.JSON(http.StatusConflict, ErrorResponse{
				Error:   "user_exists",
				Message: "Пользователь с таким именем уже существует",
			})
		default:
			h.logger.Error("Failed to register user", zap.Error(err))
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "internal_error",
				Message: "Внутренняя ошибка сервера",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, AuthResponse{
		Message: "Регистрация прошла успешно",
		Token:   result.Token,
		UserID:  result.User.ID,
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Требуются username и password",
		})
		return
	}

	password, err := auth.DecodeTransitPassword(req.Password)
	if errors.Is(err, auth.ErrPasswordFormat) {
		writePasswordError(c, err)
		return
	}
	if err != nil {
		// пароль вне допустимой длины не может совпасть с сохранённым
		writeInvalidCredentials(c)
		return
	}

	result, err := h.service.Login(c.Request.Context(), req.Username, password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeInvalidCredentials(c)
			return
		}
		h.logger.Error("Failed to log in", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Внутренняя ошибка сервера",
		})
		return
	}

	c.JSON(http.StatusOK, AuthResponse{
		Message: "Вход выполнен успешно",
		Token:   result.Token,
		UserID:  result.User.ID,
	})
}

func writeInvalidCredentials(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, ErrorResponse{
		Error:   "invalid_credentials",
		Message: "Неверное имя пользователя или пароль",
	})
}

func writePasswordError(c *gin.Context, err error) {
	resp := ErrorResponse{Error: "invalid_password_format", Message: "Неверный формат пароля. Ожидается base64"}
	switch {
	case errors.Is(err, auth.ErrPasswordTooShort):
		resp = ErrorResponse{Error: "password_too_short", Message: "Пароль слишком короткий"}
	case errors.Is(err, auth.ErrPasswordTooLong):
		resp = ErrorResponse{Error: "password_too_long", Message: "Пароль слишком длинный"}
	}
	c.JSON(http.StatusBadRequest, resp)
}
