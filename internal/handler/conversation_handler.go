package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/datachat/internal/pkg/errcode"
	"github.com/xxxsen/datachat/internal/pkg/response"
	"github.com/xxxsen/datachat/internal/service"
)

type ConversationHandler struct {
	citations *service.CitationService
	maxBytes  int64
}

func NewConversationHandler(citations *service.CitationService, maxBytes int64) *ConversationHandler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxStreamBytes
	}
	return &ConversationHandler{citations: citations, maxBytes: maxBytes}
}

// Normalize accepts the raw newline-delimited conversation stream as the
// request body.
func (h *ConversationHandler) Normalize(c *gin.Context) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	defer body.Close()
	out, err := h.citations.NormalizeStream(c.Request.Context(), body, c.Query("variant"), c.Query("conversation_id"))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, errcode.ErrInvalidStream, "stream exceeds "+formatBodyLimit(h.maxBytes))
			return
		}
		handleError(c, err)
		return
	}
	response.Success(c, out)
}

func (h *ConversationHandler) ListTurns(c *gin.Context) {
	turns, err := h.citations.ListTurns(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"turns": turns})
}

func (h *ConversationHandler) GetTurn(c *gin.Context) {
	turn, err := h.citations.GetTurn(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, turn)
}
