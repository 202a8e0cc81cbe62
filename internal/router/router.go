package router

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Baaaki/resource-hub/internal/handler"
	"github.com/Baaaki/resource-hub/internal/middleware"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps is everything the HTTP surface needs. RateLimiter and Events are
// optional and only present when Redis is configured. With no TrustedProxies
// the client IP is always the connection's remote address.
type Deps struct {
	JWTSecret      string
	IsProduction   bool
	AllowedOrigins []string
	TrustedProxies []string

	Users       middleware.IdentityResolver
	RateLimiter *middleware.RateLimiter

	Auth      *handler.AuthHandler
	Resources *handler.ResourceHandler
	Admin     *handler.AdminHandler
	Events    *handler.EventsHandler
}

func New(d Deps) (*gin.Engine, error) {
	router := gin.New()
	if err := router.SetTrustedProxies(d.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     d.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.HSTSMiddleware(d.IsProduction))
	router.Use(middleware.MetricsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	if d.RateLimiter != nil {
		api.Use(d.RateLimiter.Middleware())
	}

	// Public routes
	api.POST("/auth/register", d.Auth.Register)
	api.POST("/auth/login", d.Auth.Login)

	// Protected routes (require JWT)
	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(d.JWTSecret, d.Users))
	{
		protected.GET("/auth/profile", d.Auth.Profile)

		protected.GET("/resources/", d.Resources.List)
		protected.POST("/resources/", d.Resources.Create)
		protected.GET("/resources/:id/", d.Resources.Get)
		protected.PUT("/resources/:id/", d.Resources.Update)
		protected.PATCH("/resources/:id/", d.Resources.Patch)
		protected.DELETE("/resources/:id/", d.Resources.Delete)

		if d.Events != nil {
			protected.GET("/ws/resources", d.Events.HandleWebSocket)
		}
	}

	admin := protected.Group("/admin")
	admin.Use(middleware.AdminMiddleware())
	{
		admin.GET("/users", d.Admin.GetAllUsers)
		admin.PUT("/users/:id/role", d.Admin.ChangeRole)
		admin.DELETE("/users/:id", d.Admin.DeleteUser)
		admin.GET("/audit", d.Admin.GetAuditLog)

		if d.RateLimiter != nil {
			admin.GET("/bans", d.Admin.ListBans)
			admin.PUT("/bans/:ip", d.Admin.BanIP)
			admin.DELETE("/bans/:ip", d.Admin.UnbanIP)
		}
	}

	return router, nil
}
