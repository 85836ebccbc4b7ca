package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/para-comments-api/internal/config"
	"github.com/para-comments-api/internal/models"
	"github.com/para-comments-api/internal/service"
)

// adminSecretHeader carries the shared admin secret.
const adminSecretHeader = "X-Admin-Secret"

// AdminHandler handles the secret-guarded export, import and ban endpoints
type AdminHandler struct {
	svc service.CommentService
	cfg *config.Config
	log zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(svc service.CommentService, cfg *config.Config, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		svc: svc,
		cfg: cfg,
		log: log.With().Str("handler", "admin").Logger(),
	}
}

// RequireAdminSecret rejects requests that do not carry the configured
// admin secret. An unset secret disables the admin surface entirely.
func (h *AdminHandler) RequireAdminSecret() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := h.cfg.Auth.AdminSecret
		provided := c.GetHeader(adminSecretHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// ExportComments handles GET /api/v1/export
// Streams every stored comment as a JSON array download.
func (h *AdminHandler) ExportComments(c *gin.Context) {
	all, err := h.svc.ExportAll(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Export failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
		return
	}
	if all == nil {
		all = []models.Comment{}
	}

	filename := fmt.Sprintf("comments-export-%s.json", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.JSON(http.StatusOK, all)
}

// ImportComments handles POST /api/v1/import
func (h *AdminHandler) ImportComments(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.Server.MaxImportSize)

	var comments []models.Comment
	if err := c.ShouldBindJSON(&comments); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body"})
		return
	}

	result, err := h.svc.ImportMerge(c.Request.Context(), comments)
	if err != nil {
		h.log.Error().Err(err).Msg("Import failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": result.Success, "count": result.Count})
}

// ListBans handles GET /api/v1/bans
func (h *AdminHandler) ListBans(c *gin.Context) {
	siteID := c.Query("siteId")
	if siteID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_siteId"})
		return
	}

	bans, err := h.svc.ListBans(c.Request.Context(), siteID)
	if err != nil {
		h.log.Error().Err(err).Msg("List bans failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
		return
	}
	if bans == nil {
		bans = []models.BanRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"bans": bans})
}

type banRequest struct {
	SiteID   string `json:"siteId"`
	UserID   string `json:"userId"`
	BannedBy string `json:"bannedBy"`
}

// BanUser handles POST /api/v1/ban
func (h *AdminHandler) BanUser(c *gin.Context) {
	var req banRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SiteID == "" || req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body"})
		return
	}

	if err := h.svc.BanUser(c.Request.Context(), service.BanInput{
		SiteID:   req.SiteID,
		UserID:   req.UserID,
		BannedBy: req.BannedBy,
	}); err != nil {
		h.log.Error().Err(err).Msg("Ban failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// UnbanUser handles POST /api/v1/unban
func (h *AdminHandler) UnbanUser(c *gin.Context) {
	var req banRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SiteID == "" || req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body"})
		return
	}

	if err := h.svc.UnbanUser(c.Request.Context(), req.SiteID, req.UserID); err != nil {
		h.log.Error().Err(err).Msg("Unban failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
