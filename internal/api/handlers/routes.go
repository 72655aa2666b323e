package handlers

import (
	"github.com/gin-gonic/gin"
)

// RouteGuards are the per-audience middleware chains. Widget routes are
// anonymous; their origin check happens in the chat use case.
type RouteGuards struct {
	// User authenticates dashboard callers.
	User []gin.HandlerFunc
	// Service authenticates trusted backends.
	Service []gin.HandlerFunc
}

// RegisterHandlers mounts every operation under r.
func RegisterHandlers(r gin.IRouter, si ServerInterface, guards RouteGuards) {
	health := r.Group("/health")
	health.GET("/live", si.GetLiveness)
	health.GET("/ready", si.GetReadiness)

	public := r.Group("/public")
	public.GET("/bots/:botId/widget", func(c *gin.Context) { si.GetPublicWidget(c, c.Param("botId")) })
	public.POST("/bots/:botId/chat", func(c *gin.Context) { si.PostPublicChat(c, c.Param("botId")) })

	user := r.Group("", guards.User...)
	user.POST("/auth/callback", si.PostAuthCallback)
	user.GET("/credits", si.GetCredits)
	user.GET("/credits/transactions", si.ListCreditTransactions)
	user.GET("/notifications", si.ListNotifications)

	internal := r.Group("/internal", guards.Service...)
	internal.GET("/owners/:ownerId/credits", func(c *gin.Context) { si.GetOwnerCredits(c, c.Param("ownerId")) })
	internal.POST("/owners/:ownerId/credits/grant", func(c *gin.Context) { si.GrantOwnerCredits(c, c.Param("ownerId")) })
}
