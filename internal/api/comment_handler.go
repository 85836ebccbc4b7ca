package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/para-comments-api/internal/config"
	"github.com/para-comments-api/internal/identity"
	"github.com/para-comments-api/internal/models"
	"github.com/para-comments-api/internal/service"
	"github.com/para-comments-api/internal/validation"
)

// tokenHeader carries the optional signed identity token.
const tokenHeader = "X-Comment-Token"

// CommentHandler handles the public comment endpoints
type CommentHandler struct {
	svc service.CommentService
	cfg *config.Config
	log zerolog.Logger
}

// NewCommentHandler creates a new CommentHandler
func NewCommentHandler(svc service.CommentService, cfg *config.Config, log zerolog.Logger) *CommentHandler {
	return &CommentHandler{
		svc: svc,
		cfg: cfg,
		log: log.With().Str("handler", "comments").Logger(),
	}
}

// ListComments handles GET /api/v1/comments
// Returns the chapter's comments grouped by paragraph index.
func (h *CommentHandler) ListComments(c *gin.Context) {
	key := models.ChapterKey{
		SiteID:    c.Query("siteId"),
		WorkID:    c.Query("workId"),
		ChapterID: c.Query("chapterId"),
	}
	if errs := validation.ValidateChapterKey(key.SiteID, key.WorkID, key.ChapterID); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": errs[0].Message, "details": errs})
		return
	}

	grouped, err := h.svc.ListComments(c.Request.Context(), key)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"commentsByPara": grouped})
}

// CreateComment handles POST /api/v1/comments
func (h *CommentHandler) CreateComment(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.Server.MaxBodySize)

	var req validation.CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body"})
		return
	}
	if errs := validation.ValidateCreateComment(&req); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": errs[0].Message, "details": errs})
		return
	}

	comment, err := h.svc.CreateComment(c.Request.Context(), service.CreateCommentInput{
		Key:         models.ChapterKey{SiteID: req.SiteID, WorkID: req.WorkID, ChapterID: req.ChapterID},
		ParaIndex:   *req.ParaIndex,
		Content:     req.Content,
		UserName:    req.UserName,
		ParentID:    req.ParentID,
		ContextText: req.ContextText,
		Token:       c.GetHeader(tokenHeader),
		SourceIP:    identity.ClientIP(c.Request),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

// LikeComment handles POST /api/v1/comments/like
func (h *CommentHandler) LikeComment(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.Server.MaxBodySize)

	var req struct {
		SiteID    string `json:"siteId"`
		WorkID    string `json:"workId"`
		ChapterID string `json:"chapterId"`
		CommentID string `json:"commentId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body"})
		return
	}
	if errs := validation.ValidateChapterKey(req.SiteID, req.WorkID, req.ChapterID); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": errs[0].Message, "details": errs})
		return
	}
	if req.CommentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_commentId"})
		return
	}

	likes, err := h.svc.LikeComment(c.Request.Context(), service.LikeCommentInput{
		Key:       models.ChapterKey{SiteID: req.SiteID, WorkID: req.WorkID, ChapterID: req.ChapterID},
		CommentID: req.CommentID,
		Token:     c.GetHeader(tokenHeader),
		SourceIP:  identity.ClientIP(c.Request),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"likes": likes})
}

// DeleteComment handles DELETE /api/v1/comments
func (h *CommentHandler) DeleteComment(c *gin.Context) {
	key := models.ChapterKey{
		SiteID:    c.Query("siteId"),
		WorkID:    c.Query("workId"),
		ChapterID: c.Query("chapterId"),
	}
	if errs := validation.ValidateChapterKey(key.SiteID, key.WorkID, key.ChapterID); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": errs[0].Message, "details": errs})
		return
	}
	commentID := c.Query("commentId")
	if commentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_commentId"})
		return
	}

	err := h.svc.DeleteComment(c.Request.Context(), service.DeleteCommentInput{
		Key:       key,
		CommentID: commentID,
		Token:     c.GetHeader(tokenHeader),
		EditToken: c.Query("editToken"),
		SourceIP:  identity.ClientIP(c.Request),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// respondError maps service errors to HTTP responses.
func (h *CommentHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrLoginRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrAlreadyLikedOrNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrPermissionDenied), errors.Is(err, service.ErrUserBanned):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Msg("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
	}
}
