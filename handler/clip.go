package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"clipstream/constant"
	"clipstream/dto"
	"clipstream/entities"
	"clipstream/middleware"
	"clipstream/service"
	"clipstream/storage"
)

type ClipHandler struct {
	clips         service.ClipService
	maxUploadSize int64
}

func NewClipHandler(clips service.ClipService, maxUploadSize int64) *ClipHandler {
	return &ClipHandler{clips: clips, maxUploadSize: maxUploadSize}
}

func (h *ClipHandler) Upload(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "unauthenticated"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize)
	file, header, err := c.Request.FormFile("video")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "no video file provided"})
		return
	}
	defer file.Close()

	meta := service.UploadMeta{
		Title:        c.PostForm("title"),
		Description:  c.PostForm("description"),
		Tags:         splitTags(c.PostForm("tags")),
		IsPublic:     c.DefaultPostForm("is_public", "true") != "false",
		OriginalName: header.Filename,
	}
	if meta.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "title is required"})
		return
	}

	ctx := c.Request.Context()
	clip, err := h.clips.Upload(ctx, user, file, header.Header.Get("Content-Type"), meta)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidContentType):
			c.JSON(http.StatusBadRequest, gin.H{"message": "only video files are allowed"})
		case errors.Is(err, storage.ErrSizeLimitExceeded):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"message": "file is too large"})
		default:
			zerolog.Ctx(ctx).Error().Err(err).Msg("upload failed")
			c.JSON(http.StatusInternalServerError, gin.H{"message": "upload failed"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "clip uploaded successfully",
		"clip":    clip,
	})
}

func (h *ClipHandler) List(c *gin.Context) {
	viewer, _ := middleware.CurrentUser(c)
	page, limit := pagination(c)

	clips, total, err := h.clips.List(c.Request.Context(), viewer, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to list clips"})
		return
	}
	c.JSON(http.StatusOK, listResponse(clips, page, limit, total))
}

func (h *ClipHandler) ListByUser(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid user id"})
		return
	}
	viewer, _ := middleware.CurrentUser(c)
	page, limit := pagination(c)

	clips, total, err := h.clips.ListByUser(c.Request.Context(), userID, viewer, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to list clips"})
		return
	}
	c.JSON(http.StatusOK, listResponse(clips, page, limit, total))
}

func (h *ClipHandler) MyClips(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "unauthenticated"})
		return
	}
	page, limit := pagination(c)

	clips, total, err := h.clips.ListOwn(c.Request.Context(), user, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to list clips"})
		return
	}
	c.JSON(http.StatusOK, listResponse(clips, page, limit, total))
}

func (h *ClipHandler) Get(c *gin.Context) {
	clipID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid clip id"})
		return
	}
	viewer, _ := middleware.CurrentUser(c)

	clip, err := h.clips.Get(c.Request.Context(), clipID, viewer)
	if err != nil {
		respondClipError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clip": clip})
}

func (h *ClipHandler) Update(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "unauthenticated"})
		return
	}
	clipID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid clip id"})
		return
	}
	var req dto.UpdateClipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	clip, err := h.clips.Update(c.Request.Context(), clipID, user, &req)
	if err != nil {
		respondClipError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "clip updated successfully",
		"clip":    clip,
	})
}

func (h *ClipHandler) Delete(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "unauthenticated"})
		return
	}
	clipID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid clip id"})
		return
	}

	deleted, err := h.clips.Delete(c.Request.Context(), clipID, user)
	if err != nil {
		respondClipError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":        "clip deleted successfully",
		"chunks_deleted": deleted,
	})
}

func respondClipError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrClipNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "clip not found"})
	case errors.Is(err, service.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"message": "access denied"})
	default:
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("clip request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "something went wrong"})
	}
}

func pagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(constant.DefaultPageSize)))
	if limit < 1 {
		limit = constant.DefaultPageSize
	}
	if limit > constant.MaxPageSize {
		limit = constant.MaxPageSize
	}
	return page, limit
}

func listResponse(clips []*entities.Clip, page, limit int, total int64) dto.ClipListResponse {
	pages := (total + int64(limit) - 1) / int64(limit)
	return dto.ClipListResponse{
		Clips: clips,
		Pagination: dto.Pagination{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: pages,
		},
	}
}

func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
