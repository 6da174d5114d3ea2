package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/SergeiKhy/shortlink/internal/codec"
	"github.com/SergeiKhy/shortlink/internal/middleware"
	"github.com/SergeiKhy/shortlink/internal/models"
	"github.com/SergeiKhy/shortlink/internal/sequence"
	"github.com/SergeiKhy/shortlink/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultStatsDays = 7
	maxStatsDays     = 90
)

type LinkHandler struct {
	service        service.LinkService
	clickProcessor service.ClickProcessor
	baseURL        string
	redirectStatus int
	logger         *zap.Logger
}

// NewLinkHandler baseURL пустой: короткая ссылка строится из схемы и хоста запроса
func NewLinkHandler(
	service service.LinkService,
	clickProcessor service.ClickProcessor,
	baseURL string,
	redirectStatus int,
	logger *zap.Logger,
) *LinkHandler {
	if redirectStatus == 0 {
		redirectStatus = http.StatusMovedPermanently
	}
	return &LinkHandler{
		service:        service,
		clickProcessor: clickProcessor,
		baseURL:        baseURL,
		redirectStatus: redirectStatus,
		logger:         logger,
	}
}

type CreateLinkRequest struct {
	LongURL   string `json:"longUrl" binding:"required"`
	ExpiresIn *int   `json:"expiresIn,omitempty"` // минуты
}

type CreateLinkResponse struct {
	Status    string     `json:"status"`
	ID        int64      `json:"id"`
	ShortCode string     `json:"shortCode"`
	ShortID   string     `json:"shortId"` // то же, что shortCode; поле веб-клиента
	ShortURL  string     `json:"shortUrl"`
	LongURL   string     `json:"longUrl"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

type UserLinksResponse struct {
	Links   []models.Link `json:"links"`
	Count   int           `json:"count"`
	Message string        `json:"message"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CreateLink выдаёт короткий код для URL текущего пользователя
func (h *LinkHandler) CreateLink(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "Требуется авторизация",
		})
		return
	}

	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Отсутствует longUrl",
		})
		return
	}

	link, err := h.service.CreateLink(c.Request.Context(), &models.CreateLinkInput{
		LongURL:   req.LongURL,
		UserID:    userID,
		ExpiresIn: req.ExpiresIn,
	})
	if err != nil {
		h.writeCreateError(c, err)
		return
	}

	shortURL := h.shortURL(c, link.ShortCode)
	c.JSON(http.StatusCreated, CreateLinkResponse{
		Status:    "success",
		ID:        link.ID,
		ShortCode: link.ShortCode,
		ShortID:   link.ShortCode,
		ShortURL:  shortURL,
		LongURL:   link.LongURL,
		ExpiresAt: link.ExpiresAt,
		CreatedAt: link.CreatedAt,
	})
}

func (h *LinkHandler) writeCreateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidURL):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_url",
			Message: "Invalid URL format",
		})
	case errors.Is(err, service.ErrSpamDomain):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "spam_domain",
			Message: "Domain is blacklisted",
		})
	case errors.Is(err, sequence.ErrUnavailable):
		h.logger.Error("Sequence unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "sequence_unavailable",
			Message: "Сервис временно не может выдавать короткие ссылки",
		})
	default:
		h.logger.Error("Failed to create link", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to create link",
		})
	}
}

// Redirect переходит по короткому коду. Код только проверяется на алфавит,
// ссылка ищется в хранилище, а не вычисляется декодированием.
func (h *LinkHandler) Redirect(c *gin.Context) {
	code := c.Param("code")

	link, err := h.service.GetLink(c.Request.Context(), code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCode):
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_code",
				Message: "Короткий код содержит недопустимые символы",
			})
		case errors.Is(err, service.ErrLinkNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Ссылка не найдена",
			})
		default:
			h.logger.Error("Failed to resolve link", zap.String("code", code), zap.Error(err))
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "internal_error",
				Message: "Failed to resolve link",
			})
		}
		return
	}

	// Асинхронная запись статистики
	clickEvent := &models.ClickEvent{
		ShortCode: link.ShortCode,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Referer:   c.Request.Referer(),
	}
	if err := h.clickProcessor.RecordClick(c.Request.Context(), clickEvent); err != nil {
		h.logger.Debug("Failed to record click (non-blocking)", zap.Error(err))
	}

	c.Redirect(h.redirectStatus, link.LongURL)
}

// ListUserLinks ссылки текущего пользователя, новые первыми
func (h *LinkHandler) ListUserLinks(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "Требуется авторизация",
		})
		return
	}

	links, err := h.service.ListUserLinks(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list links", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to list links",
		})
		return
	}

	message := "Ссылки получены"
	if len(links) == 0 {
		message = "У вас пока нет ссылок"
	}
	c.JSON(http.StatusOK, UserLinksResponse{
		Links:   links,
		Count:   len(links),
		Message: message,
	})
}

// DeleteLink удаляет ссылку по её id; чужие ссылки неотличимы от несуществующих
func (h *LinkHandler) DeleteLink(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "Требуется авторизация",
		})
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_id",
			Message: "Link id must be a positive integer",
		})
		return
	}

	if err := h.service.DeleteLink(c.Request.Context(), id, userID); err != nil {
		if errors.Is(err, service.ErrLinkNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Link not found",
			})
			return
		}
		h.logger.Error("Failed to delete link", zap.Int64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to delete link",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Link deleted successfully"})
}

// GetStats число переходов и уникальных IP
func (h *LinkHandler) GetStats(c *gin.Context) {
	code, ok := h.statsCode(c)
	if !ok {
		return
	}

	stats, err := h.clickProcessor.GetStats(c.Request.Context(), code)
	if err != nil {
		h.logger.Error("Failed to get stats", zap.String("code", code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to get stats",
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetDailyStats переходы по дням; days вне 1..90 заменяется на 7
func (h *LinkHandler) GetDailyStats(c *gin.Context) {
	code, ok := h.statsCode(c)
	if !ok {
		return
	}

	days := defaultStatsDays
	if d := c.Query("days"); d != "" {
		if n, err := strconv.Atoi(d); err == nil && n >= 1 && n <= maxStatsDays {
			days = n
		}
	}

	stats, err := h.clickProcessor.GetDailyStats(c.Request.Context(), code, days)
	if err != nil {
		h.logger.Error("Failed to get daily stats", zap.String("code", code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to get daily stats",
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *LinkHandler) statsCode(c *gin.Context) (string, bool) {
	code := c.Param("code")
	if err := codec.Validate(code); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_code",
			Message: err.Error(),
		})
		return "", false
	}
	return code, true
}

func (h *LinkHandler) shortURL(c *gin.Context, code string) string {
	if h.baseURL != "" {
		return h.baseURL + "/" + code
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + c.Request.Host + "/" + code
}
