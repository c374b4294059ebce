package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"clipstream/entities"
	"clipstream/middleware"
	"clipstream/service"
	"clipstream/storage"
	"clipstream/transcode"
)

// StreamHandler serves playback: transcoded fragmented MP4 or the raw
// stored bytes. Once the response body has started, a mid-stream failure
// can only truncate the connection; the client detects it from the cut-off.
type StreamHandler struct {
	clips service.ClipService
}

func NewStreamHandler(clips service.ClipService) *StreamHandler {
	return &StreamHandler{clips: clips}
}

// Stream re-encodes the clip through the external encoder and pipes the
// output straight into the response.
func (h *StreamHandler) Stream(c *gin.Context) {
	clip, ok := h.resolve(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	// Status and headers are flushed with the first encoder output byte,
	// so a failure before any output can still produce a proper error
	// response.
	c.Header("Content-Type", h.clips.OutputContentType())

	if err := h.clips.StreamTranscoded(ctx, clip, c.Writer); err != nil {
		h.logStreamFailure(ctx, clip, err)
		if !c.Writer.Written() {
			respondStreamError(c, err)
			return
		}
		// Headers are gone; the truncated body is all the client gets.
		c.Abort()
		return
	}
}

func respondStreamError(c *gin.Context, err error) {
	c.Writer.Header().Del("Content-Length")
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "clip not found"})
	case errors.Is(err, transcode.ErrEncoderSpawn), errors.Is(err, transcode.ErrEncoderCrashed):
		c.JSON(http.StatusBadGateway, gin.H{"message": "transcoding failed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"message": "playback failed"})
	}
}

// Raw serves the stored object bytes without re-encoding.
func (h *StreamHandler) Raw(c *gin.Context) {
	clip, ok := h.resolve(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	c.Header("Content-Type", clip.ContentType)
	c.Header("Content-Length", strconv.FormatInt(clip.Size, 10))

	if err := h.clips.StreamRaw(ctx, clip, c.Writer); err != nil {
		h.logStreamFailure(ctx, clip, err)
		if !c.Writer.Written() {
			respondStreamError(c, err)
			return
		}
		c.Abort()
	}
}

func (h *StreamHandler) resolve(c *gin.Context) (*entities.Clip, bool) {
	clipID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid clip id"})
		return nil, false
	}
	viewer, _ := middleware.CurrentUser(c)

	clip, err := h.clips.Resolve(c.Request.Context(), clipID, viewer)
	if err != nil {
		respondClipError(c, err)
		return nil, false
	}
	return clip, true
}

func (h *StreamHandler) logStreamFailure(ctx context.Context, clip *entities.Clip, err error) {
	logger := zerolog.Ctx(ctx).With().Str("clip_id", clip.ID.String()).Logger()
	switch {
	case errors.Is(err, context.Canceled):
		logger.Debug().Msg("playback cancelled by client")
	case errors.Is(err, transcode.ErrEncoderCrashed):
		logger.Error().Err(err).Msg("encoder crashed mid-stream")
	case errors.Is(err, transcode.ErrEncoderSpawn):
		logger.Error().Err(err).Msg("failed to start encoder")
	case errors.Is(err, storage.ErrNotFound):
		logger.Error().Err(err).Msg("object missing during playback")
	default:
		logger.Error().Err(err).Msg("playback failed")
	}
}
