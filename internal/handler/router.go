package handler

import (
	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	Citations    *CitationHandler
	Conversation *ConversationHandler
	Files        *FileHandler
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/citations/display", deps.Citations.Display)
	api.POST("/citations/card", deps.Citations.Card)

	api.POST("/conversation/normalize", deps.Conversation.Normalize)
	api.GET("/conversation/:id/turns", deps.Conversation.ListTurns)
	api.GET("/turns/:id", deps.Conversation.GetTurn)

	api.GET("/files/*path", deps.Files.Get)
}
