package handler

import (
	"mime"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/datachat/internal/filestore"
	appErr "github.com/xxxsen/datachat/internal/pkg/errors"
)

// FileHandler serves the documents citation links are rewritten to.
type FileHandler struct {
	store filestore.Store
}

func NewFileHandler(store filestore.Store) *FileHandler {
	return &FileHandler{store: store}
}

func (h *FileHandler) Get(c *gin.Context) {
	if h.store == nil {
		handleError(c, appErr.ErrStoreDisabled)
		return
	}
	key, err := filestore.CleanKey(c.Param("path"))
	if err != nil {
		handleError(c, err)
		return
	}
	file, err := h.store.Open(c.Request.Context(), key)
	if err != nil {
		handleError(c, err)
		return
	}
	defer file.Close()
	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, -1, contentType, file, map[string]string{
		"Content-Disposition": mime.FormatMediaType("inline", map[string]string{"filename": path.Base(key)}),
	})
}
