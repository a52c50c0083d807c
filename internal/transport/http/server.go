package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketchat/internal/auth"
	"github.com/vovakirdan/marketchat/internal/config"
	"github.com/vovakirdan/marketchat/internal/core"
	"github.com/vovakirdan/marketchat/internal/proto"
	"github.com/vovakirdan/marketchat/internal/service/chat"
	"github.com/vovakirdan/marketchat/internal/service/listings"
	"github.com/vovakirdan/marketchat/internal/service/profiles"
	"github.com/vovakirdan/marketchat/internal/service/wishlist"
)

// Services bundles what the HTTP layer serves.
type Services struct {
	Hub      *core.Hub
	Auth     *auth.Service
	Chat     *chat.Service
	Listings *listings.Service
	Profiles *profiles.Service
	Wishlist *wishlist.Service
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Protocol    int    `json:"protocol"`
	Rooms       int    `json:"rooms"`
	Subscribers int    `json:"subscribers"`
}

// NewServer builds the HTTP server. The returned stop function ends background work.
func NewServer(svc Services, cfg config.Config, logger *zerolog.Logger) (*stdhttp.Server, func()) {
	router, stop := NewRouter(svc, cfg, logger)
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}, stop
}

// NewRouter registers every route on a new gin engine.
func NewRouter(svc Services, cfg config.Config, logger *zerolog.Logger) (*gin.Engine, func()) {
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		rooms, subs := svc.Hub.Stats()
		c.JSON(stdhttp.StatusOK, HealthResponse{
			Status:      "ok",
			Protocol:    proto.ProtocolVersion,
			Rooms:       rooms,
			Subscribers: subs,
		})
	})
	if cfg.Media.Dir != "" && cfg.Media.URLPrefix != "" {
		router.Static(cfg.Media.URLPrefix, cfg.Media.Dir)
	}

	apiHandlers := NewAPIHandlers(svc.Auth, logger)
	userHandlers := NewUserHandlers(svc.Profiles, svc.Wishlist, logger)
	listingHandlers := NewListingHandlers(svc.Listings, logger)
	chatHandlers := NewChatHandlers(svc.Chat, logger)
	adminHandlers := NewAdminHandlers(svc.Profiles, svc.Listings, logger)
	streamHandler := NewStreamHandler(svc.Hub, svc.Chat, cfg.Chat.SubscriberBuffer, logger)

	limiter := newRateLimiter(cfg.Chat.RateLimitPerSecond, cfg.Chat.RateLimitBurst)
	stopPrune := make(chan struct{})
	limiter.startPrune(stopPrune)

	api := router.Group("/api")
	{
		api.POST("/auth/signup", apiHandlers.SignUp)
		api.POST("/auth/login", apiHandlers.Login)

		api.GET("/profiles/:id", userHandlers.GetProfile)
		api.GET("/listings", listingHandlers.List)
		api.GET("/listings/:id", listingHandlers.Get)
		api.GET("/listings/:id/similar", listingHandlers.Similar)
	}

	authed := api.Group("")
	authed.Use(AuthMiddleware(svc.Auth, logger))
	{
		authed.GET("/me", userHandlers.Me)
		authed.PATCH("/me", userHandlers.UpdateMe)
		authed.GET("/me/wishlist", userHandlers.Wishlist)
		authed.POST("/me/wishlist/:listingId", userHandlers.ToggleWishlist)

		authed.POST("/listings", listingHandlers.Create)
		authed.PUT("/listings/:id", listingHandlers.Update)
		authed.DELETE("/listings/:id", listingHandlers.Delete)

		authed.POST("/chats", chatHandlers.CreateSession)
		authed.GET("/chats", chatHandlers.ListSessions)
		authed.GET("/chats/:id", chatHandlers.GetSession)
		authed.GET("/chats/:id/messages", chatHandlers.ListMessages)
		authed.POST("/chats/:id/messages", RateLimitMiddleware(limiter), chatHandlers.SendMessage)
		authed.GET("/chats/:id/stream", streamHandler.Stream)

		admin := authed.Group("/admin")
		admin.Use(RequireAdmin())
		admin.GET("/listings", listingHandlers.AdminList)
		admin.GET("/profiles", adminHandlers.Profiles)
	}

	return router, func() { close(stopPrune) }
}
