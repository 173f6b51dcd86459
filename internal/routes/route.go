package routes

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/gatherly/internal/container"
	"github.com/joshua-takyi/gatherly/internal/handlers"
	"github.com/joshua-takyi/gatherly/internal/middleware"
)

// SetupRoutes configures all routes with the dependency container
func SetupRoutes(container *container.Container) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     container.Config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(container.Logger))
	r.Use(middleware.ErrorHandler(container.Logger))
	r.Use(gin.Recovery())

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "OK",
				"service": "gatherly-api",
			})
		})

		// public routes
		v1.POST("/auth/register", handlers.Register(container.UserService))
		v1.POST("/auth/login", handlers.Login(container.UserService))

		v1.GET("/events", handlers.ListEvents(container.EventService))
		v1.GET("/events/search", handlers.SearchEvents(container.EventService))
		v1.GET("/events/upcoming", handlers.ListUpcomingEvents(container.EventService))
		v1.GET("/events/past", handlers.ListPastEvents(container.EventService))
		v1.GET("/events/:id", handlers.GetEvent(container.EventService))

		// persistent connections; credential optional, resolved in-handler
		v1.GET("/ws", handlers.ServeWS(
			container.Hub,
			container.UserService,
			container.AttendanceService,
			container.Logger,
		))
	}

	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware(container.Logger))

	eventRoutes := protected.Group("/events")
	{
		eventRoutes.POST("", handlers.CreateEvent(container.EventService))
		eventRoutes.PUT("/:id", handlers.UpdateEvent(container.EventService))
		eventRoutes.DELETE("/:id", handlers.DeleteEvent(container.EventService))
	}

	return r
}
