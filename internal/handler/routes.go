package handler

import (
	"github.com/Baaaki/scooter-fleet/internal/middleware"
	"github.com/gin-gonic/gin"
)

// Routes bundles the handlers mounted under /api.
type Routes struct {
	Auth    *AuthHandler
	Chat    *ChatHandler
	Admin   *AdminHandler
	Gateway *Gateway

	// RequireAuth is AuthMiddleware bound to the auth service.
	RequireAuth gin.HandlerFunc
	// AuthLimit throttles the public auth endpoints, nil disables it.
	AuthLimit gin.HandlerFunc
}

// Register mounts the auth, chat, admin and realtime routes under /api.
func (rt Routes) Register(router gin.IRouter) {
	api := router.Group("/api")

	public := api.Group("/auth")
	if rt.AuthLimit != nil {
		public.Use(rt.AuthLimit)
	}
	public.POST("/register", rt.Auth.Register)
	public.POST("/login", rt.Auth.Login)
	public.POST("/logout", rt.Auth.Logout)

	protected := api.Group("")
	protected.Use(rt.RequireAuth)
	{
		protected.GET("/auth/me", rt.Auth.Me)
		protected.GET("/ws", rt.Gateway.HandleWebSocket)

		protected.GET("/chats", rt.Chat.ListChats)
		protected.POST("/chats", rt.Chat.CreateChat)
		protected.GET("/chats/:id", rt.Chat.GetChat)
		protected.POST("/chats/:id/messages", rt.Chat.SendMessage)
		protected.POST("/chats/:id/read", rt.Chat.MarkRead)
		protected.GET("/admins", rt.Chat.ListAdmins)
		protected.GET("/rate-limit", rt.Chat.RateLimit)
	}

	admin := protected.Group("/admin")
	admin.Use(middleware.AdminMiddleware())
	{
		admin.GET("/chats", rt.Admin.ListChats)
		admin.POST("/chats/:id/approve", rt.Admin.ApproveChat)
		admin.POST("/chats/:id/block", rt.Admin.BlockChat)
		admin.POST("/chats/:id/unblock", rt.Admin.UnblockChat)
		admin.DELETE("/chats/:id", rt.Admin.DeleteChat)
	}
}
