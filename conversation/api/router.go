package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterMessageRoutes mounts the conversation API on rg
func RegisterMessageRoutes(rg *gin.RouterGroup, handler *MessageHandler) {
	msgGroup := rg.Group("/messages")
	{
		msgGroup.GET("", handler.ListMessages)
		msgGroup.POST("", handler.CreateMessage)
		msgGroup.DELETE("", handler.ClearMessages)
	}

	rg.GET("/participants", handler.GetParticipants)
	rg.POST("/facilitator/evaluate", handler.EvaluateFacilitator)
	rg.GET("/export", handler.ExportConversation)
}
