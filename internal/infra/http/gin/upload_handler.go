package ginserver

import (
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	gin "github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"campusmarket/internal/app/dto"
	"campusmarket/internal/infra/storage/s3"
)

const maxAttachmentBytes = 10 << 20

// UploadHTTP exposes the attachment upload endpoint.
type UploadHTTP interface {
	Attach(c *gin.Context)
}

// UploadHandler stores chat attachments and returns their public URL. The
// client then sends the URL as a regular message body.
type UploadHandler struct {
	Uploader s3.Uploader
	Logger   *slog.Logger
}

func (h UploadHandler) Attach(c *gin.Context) {
	principal, ok := requireRole(c, "")
	if !ok {
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if file.Size > maxAttachmentBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	ext := strings.ToLower(path.Ext(file.Filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported file type"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer src.Close()

	key := fmt.Sprintf("chat/%s/%s%s", principal.Profile.ID, uuid.NewString(), ext)
	url, err := h.Uploader.Upload(c.Request.Context(), key, src, file.Header.Get("Content-Type"))
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("attachment upload failed", "error", err, "user_id", principal.Profile.ID)
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "upload unavailable"})
		return
	}
	c.JSON(http.StatusCreated, dto.Upload{URL: url})
}
