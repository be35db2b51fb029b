// Package httpapi wires the local gateway: middleware, guards and the
// handlers that front the upstream QA API for the browser UI.
//
// Middleware order:
//  1. OpenTelemetry
//  2. RequestID
//  3. AccessLog (redacting)
//  4. Recovery
//  5. Metrics
//  6. Gzip (not on event streams or downloads)
//  7. CORS and security headers
//  8. Guard, then rate limiting, on the API group
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-docqa-web/internal/config"
	"github.com/tbourn/go-docqa-web/internal/http/docs"
	"github.com/tbourn/go-docqa-web/internal/http/handlers"
	"github.com/tbourn/go-docqa-web/internal/http/middleware"
)

// jsonBodyLimit caps non-upload request bodies.
const jsonBodyLimit = 1 << 20

// RegisterRoutes attaches middleware and endpoints to r.
func RegisterRoutes(r *gin.Engine, deps handlers.Deps, log zerolog.Logger, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	base := cfg.APIBasePath
	if base == "/" {
		base = ""
	}

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(log, middleware.NewRedactor("X-Refresh-Token")))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Metrics())
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{base + "/auth/events", base + "/documents/upload"}),
		gzip.WithExcludedPathsRegexs([]string{`/documents/[^/]+/download$`}),
	))
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
		NoStore:    true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(deps)
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())

	api := r.Group(base)
	api.Use(middleware.Guard(deps.Guards, deps.Session, base, cfg.LoginPath), rl.Handler())

	small := api.Group("", limitBody(jsonBodyLimit))
	{
		small.POST("/auth/login", h.Login)
		small.POST("/auth/signup", h.Signup)
		small.POST("/auth/logout", h.Logout)
		small.POST("/auth/refresh", h.Refresh)
		small.GET("/auth/me", h.Me)
		small.GET("/auth/events", h.Events)
		small.GET("/auth/guard", h.Guard)

		small.POST("/qa/init", h.InitChat)
		small.GET("/qa/transcript", h.Transcript)
		small.POST("/qa/ask", h.Ask)
		small.POST("/qa/answers/:id/rate", h.RateAnswer)
		small.GET("/qa/sessions", h.ListSessions)
		small.POST("/qa/sessions", h.NewSession)
		small.POST("/qa/sessions/:id/switch", h.SwitchSession)
		small.DELETE("/qa/sessions/:id", h.DeleteSession)
		small.GET("/qa/popular", h.PopularQuestions)

		small.GET("/documents", h.ListDocuments)
		small.POST("/documents/validate", h.ValidateFile)
		small.GET("/documents/:id", h.GetDocument)
		small.PATCH("/documents/:id", h.UpdateDocument)
		small.DELETE("/documents/:id", h.DeleteDocument)
		small.GET("/documents/:id/download", h.DownloadDocument)

		small.POST("/analytics/pageview", h.TrackPageView)
		small.POST("/analytics/metrics", h.TrackMetric)
	}
	// Room for the file plus multipart framing.
	api.POST("/documents/upload", limitBody(cfg.UploadMaxBytes+jsonBodyLimit), h.UploadDocument)
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID", "Location", "Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
	}
	return cors.New(cc)
}

// limitBody makes reads past maxBytes fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
