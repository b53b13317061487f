package routes

import (
	"net/http"

	"docsync-api/internal/auth"
	"docsync-api/internal/handlers"
	"docsync-api/internal/logging"
	"docsync-api/internal/metrics"
	"docsync-api/internal/middleware"
	"docsync-api/internal/realtime"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deps are the long-lived components the routes are wired to.
type Deps struct {
	Broker   *realtime.Broker
	Verifier *auth.Verifier
	WS       handlers.WSOptions
	Log      *zap.Logger
}

func SetupRoutes(deps Deps) *gin.Engine {
	log := deps.Log
	if log == nil {
		log = logging.GetLogger()
	}

	// Create a new GIN Router
	ginRouter := gin.Default()

	// CORS middleware (for frontend integration)
	ginRouter.Use(middleware.CORS())
	ginRouter.Use(metrics.Middleware())

	// Health check endpoint
	ginRouter.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "DocSync collaboration server is running",
		})
	})
	ginRouter.GET("/metrics", gin.WrapH(metrics.Handler()))
	ginRouter.GET("/stats", handlers.Stats(deps.Broker))

	// Public routes (no authentication required)
	api := ginRouter.Group("/api")
	{
		api.POST("/login", handlers.Login(deps.Verifier.Tokens()))
	}

	authRequired := middleware.JWTAuthMiddleware(deps.Verifier)

	// Protected routes (authentication required)
	protectedRoutes := api.Group("")
	protectedRoutes.Use(authRequired)
	{
		protectedRoutes.GET("/me", handlers.Me)

		// Document endpoints
		protectedRoutes.GET("/documents", handlers.GetDocuments)
		protectedRoutes.GET("/documents/:id", handlers.GetDocumentByID)
		protectedRoutes.POST("/documents", handlers.CreateDocument)
		protectedRoutes.DELETE("/documents/:id", handlers.DeleteDocument)

		// Room endpoints
		protectedRoutes.POST("/rooms", handlers.CreateRoom)
		protectedRoutes.GET("/rooms/:code/members", handlers.GetRoomMembers(deps.Broker))
	}

	// Realtime endpoint; browsers pass the token as ?token=
	ginRouter.GET("/ws", authRequired, handlers.WebSocketHandler(deps.Broker, deps.WS, log.Named("ws")))

	return ginRouter
}
