package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/datachat/internal/model"
	"github.com/xxxsen/datachat/internal/pkg/errcode"
	"github.com/xxxsen/datachat/internal/pkg/response"
	"github.com/xxxsen/datachat/internal/service"
)

type CitationHandler struct {
	citations *service.CitationService
}

func NewCitationHandler(citations *service.CitationService) *CitationHandler {
	return &CitationHandler{citations: citations}
}

type cardRequest struct {
	Citations []model.Citation `json:"citations"`
	Answer    string           `json:"answer"`
}

func (h *CitationHandler) Display(c *gin.Context) {
	var req model.Answer
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	out, err := h.citations.NormalizeDisplay(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, out)
}

func (h *CitationHandler) Card(c *gin.Context) {
	var req cardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	out, err := h.citations.NormalizeCard(c.Request.Context(), req.Citations, req.Answer)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, out)
}
