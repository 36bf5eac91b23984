package http

import (
	"github.com/EternisAI/netboot/internal/api/http/dto"
	"github.com/EternisAI/netboot/internal/api/http/handler"
	"github.com/EternisAI/netboot/internal/api/http/middleware"
	"github.com/EternisAI/netboot/internal/auth"
	"github.com/EternisAI/netboot/internal/boot"
	"github.com/EternisAI/netboot/internal/clients"
	"github.com/EternisAI/netboot/internal/commands"
	"github.com/EternisAI/netboot/internal/images"
	"github.com/EternisAI/netboot/internal/presence"
	"github.com/EternisAI/netboot/internal/stats"
	"github.com/gin-gonic/gin"
)

type Services struct {
	Clients     *clients.Service
	Presence    *presence.Tracker
	Commands    *commands.Service
	Stats       *stats.Service
	Images      *images.Service
	Coordinator *boot.Coordinator
	Auth        *auth.Service
	// DB backs the health check; nil on the in-memory store.
	DB handler.Pinger

	JWTSecret   string
	BootAPIKey  string
	AgentConfig dto.AgentConfig
}

func SetupRoute(engine *gin.Engine, srvs *Services) {
	engine.Use(middleware.RequestLogger())

	healthHandler := handler.NewHealthHandler(srvs.DB)
	engine.GET("/health", healthHandler.Check)

	v1 := engine.Group("/api/v1")

	clientHandler := handler.NewClientHandler(srvs.Clients, srvs.Presence, srvs.Commands, srvs.Stats, srvs.AgentConfig)
	client := v1.Group("/client")
	client.POST("/register", clientHandler.Register)
	authed := client.Group("", middleware.ClientTokenAuth(srvs.Clients))
	authed.POST("/heartbeat", clientHandler.Heartbeat)
	authed.POST("/stats", clientHandler.Stats)
	authed.GET("/commands", clientHandler.ListCommands)
	authed.POST("/commands/:id/ack", clientHandler.AckCommand)

	bootHandler := handler.NewBootHandler(srvs.Coordinator, srvs.Images)
	bootGroup := v1.Group("/boot", middleware.APIKeyAuth(srvs.BootAPIKey))
	bootGroup.GET("/targets/:mac", bootHandler.GetTarget)
	bootGroup.POST("/events", bootHandler.ReportEvent)
	bootGroup.PUT("/images/:id/blocks", bootHandler.WriteBlock)
	bootGroup.GET("/images/:id/content", bootHandler.ReadContent)

	authHandler := handler.NewAuthHandler(srvs.Auth)
	v1.POST("/auth/login", authHandler.Login)

	admin := v1.Group("/admin", middleware.JWTAuth(srvs.JWTSecret), middleware.RequireRole(auth.RoleAdmin))

	clientsHandler := handler.NewAdminClientsHandler(srvs.Clients, srvs.Coordinator, srvs.Presence, srvs.Commands, srvs.Stats)
	admin.POST("/clients", clientsHandler.CreateClient)
	admin.GET("/clients", clientsHandler.ListClients)
	admin.GET("/clients/:id", clientsHandler.GetClient)
	admin.PATCH("/clients/:id", clientsHandler.UpdateClient)
	admin.DELETE("/clients/:id", clientsHandler.DeleteClient)
	admin.PUT("/clients/:id/image", clientsHandler.AssignImage)
	admin.DELETE("/clients/:id/image", clientsHandler.ClearImage)
	admin.POST("/clients/:id/revoke", clientsHandler.RevokeToken)
	admin.POST("/clients/:id/status", clientsHandler.ReportStatus)
	admin.POST("/clients/:id/commands", clientsHandler.EnqueueCommand)
	admin.GET("/clients/:id/commands", clientsHandler.ListCommands)
	admin.GET("/clients/:id/stats", clientsHandler.ListStats)

	imagesHandler := handler.NewAdminImagesHandler(srvs.Images)
	admin.POST("/images", imagesHandler.CreateImage)
	admin.GET("/images", imagesHandler.ListImages)
	admin.GET("/images/:id", imagesHandler.GetImage)
	admin.PATCH("/images/:id", imagesHandler.UpdateImage)
	admin.DELETE("/images/:id", imagesHandler.DeleteImage)
	admin.POST("/images/:id/clone", imagesHandler.CloneImage)
	admin.POST("/images/:id/overlay/enable", imagesHandler.EnableOverlay)
	admin.POST("/images/:id/overlay/disable", imagesHandler.DisableOverlay)
	admin.POST("/images/:id/points", imagesHandler.CreatePoint)
	admin.GET("/images/:id/points", imagesHandler.ListPoints)
	admin.POST("/points/:id/restore", imagesHandler.Restore)
	admin.DELETE("/points/:id", imagesHandler.DeletePoint)
}
