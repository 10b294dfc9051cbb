package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/ragdesk-backend/internal/http/response"
	"github.com/yungbote/ragdesk-backend/internal/objectstore"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
)

const DefaultMaxUploadBytes = 5 << 20

type UploadHandler struct {
	log      *logger.Logger
	store    objectstore.Store
	prefix   string
	maxBytes int64
}

func NewUploadHandler(log *logger.Logger, store objectstore.Store, prefix string, maxBytes int64) *UploadHandler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &UploadHandler{
		log:      log.With("handler", "UploadHandler"),
		store:    store,
		prefix:   prefix,
		maxBytes: maxBytes,
	}
}

// POST /upload (multipart field "file")
func (h *UploadHandler) Post(c *gin.Context) {
	// Headroom for the multipart envelope around the file part.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+64<<10)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.RespondMessage(c, http.StatusRequestEntityTooLarge, "file_too_large", fmt.Sprintf("File exceeds the %d byte limit.", h.maxBytes))
			return
		}
		response.RespondMessage(c, http.StatusBadRequest, "no_file", "No file uploaded.")
		return
	}
	if fh.Size > h.maxBytes {
		response.RespondMessage(c, http.StatusRequestEntityTooLarge, "file_too_large", fmt.Sprintf("File exceeds the %d byte limit.", h.maxBytes))
		return
	}

	name := path.Base(fh.Filename)
	if name == "." || name == "/" || name == "" {
		response.RespondMessage(c, http.StatusBadRequest, "no_file", "No file uploaded.")
		return
	}
	key := objectstore.Join(h.prefix, name)

	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "upload_failed", err)
		return
	}
	defer f.Close()

	contentType := fh.Header.Get("Content-Type")
	if err := h.store.Upload(c.Request.Context(), key, f, contentType); err != nil {
		h.log.Error("upload failed", "key", key, "error", err)
		response.RespondMessage(c, http.StatusInternalServerError, "upload_failed", "Could not upload the file: "+err.Error())
		return
	}
	h.log.Info("uploaded file", "key", key, "bytes", fh.Size)
	response.RespondOK(c, gin.H{
		"message":  "File uploaded successfully to storage",
		"filename": key,
	})
}
