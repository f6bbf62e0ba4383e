package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"empowertours/internal/api/handlers"
	"empowertours/internal/api/middleware"
	"empowertours/internal/config"
	database "empowertours/internal/db"
	"empowertours/internal/farcaster"
	"empowertours/internal/geo"
	"empowertours/internal/ingest"
	"empowertours/internal/ipfs"
	"empowertours/internal/relay"
	"empowertours/internal/scheduler"
	"empowertours/internal/storage"
	"empowertours/internal/store"
)

type Server struct {
	cfg    *config.Config
	router *gin.Engine
}

// Deps bundles the infrastructure the route handlers need. DB, Ingester and
// Caster may be nil: the server boots without Postgres, without casts, and
// without an in-process ingester (when cmd/ingester runs separately).
type Deps struct {
	Store    *store.Client
	Relay    *relay.Relay
	DB       *database.Client
	Ingester *ingest.Service
	Pinner   *ipfs.Client
	Mirror   *storage.Client
	Geo      *geo.Client
	Caster   *farcaster.Client
}

func New(cfg *config.Config, deps Deps) *Server {
	if cfg.Server.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode) // Set to Release for production
	}

	middleware.SetJWTSecret(cfg.Radio.JWTSecret)

	s := &Server{
		cfg:    cfg,
		router: gin.Default(),
	}

	s.setupMiddleware()
	s.setupRoutes(deps)

	return s
}

func (s *Server) setupMiddleware() {
	// CORS Configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}

	// IMPORTANT: "Authorization" must be allowed so the mini app can send the JWT
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}

	s.router.Use(cors.New(corsConfig))
}

func (s *Server) setupRoutes(deps Deps) {
	var gormDB *gorm.DB
	if deps.DB != nil {
		gormDB = deps.DB.DB
	}

	var announcer scheduler.Announcer
	if deps.Caster != nil && s.cfg.Radio.AnnounceNowPlaying {
		announcer = deps.Caster
	}

	var starter handlers.Starter
	if deps.Ingester != nil {
		starter = deps.Ingester
	}

	schedulerSvc := scheduler.New(deps.Store, deps.Relay, gormDB, announcer)

	streamHandler := handlers.NewStreamHandler(
		deps.Store, deps.Relay, starter,
		time.Duration(s.cfg.Radio.HeartbeatSeconds)*time.Second,
		s.cfg.Radio.QueueWindow, s.cfg.Radio.VoiceNoteWindow,
	)
	schedulerHandler := handlers.NewSchedulerHandler(schedulerSvc, s.cfg.Radio.KeeperSecret)
	radioHandler := handlers.NewRadioHandler(deps.Store, deps.Relay, s.cfg.Radio.QueueWindow, s.cfg.Radio.VoiceNoteWindow)
	mediaHandler := handlers.NewMediaHandler(gormDB, deps.Pinner, deps.Mirror, deps.Geo, deps.Caster)
	statsHandler := handlers.NewStatsHandler(gormDB, deps.Store, deps.Relay)

	// Health Check
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "empowertours"})
	})

	api := s.router.Group("/api")
	{
		// ==========================================
		// PUBLIC ROUTES (No Token Required)
		// ==========================================
		api.GET("/live-radio/stream", streamHandler.Stream)
		api.GET("/live-radio/state", radioHandler.GetState)
		api.GET("/stats", statsHandler.GetStats)
		api.GET("/media/:kind/:cid", mediaHandler.Serve)

		// The cron trigger authenticates with the keeper secret, not a JWT
		api.POST("/live-radio/scheduler", schedulerHandler.Tick)

		// ==========================================
		// PROTECTED ROUTES (JWT Token Required)
		// ==========================================
		protected := api.Group("/")
		protected.Use(middleware.RequireAuth())
		{
			protected.POST("/media/upload", middleware.RequireRole("curator"), mediaHandler.Upload)
			protected.GET("/media/assets", middleware.RequireRole("curator"), mediaHandler.GetAssets)
			protected.DELETE("/media/:kind/:cid", middleware.RequireRole("curator"), mediaHandler.EvictMirror)
			protected.POST("/live-radio/queue", middleware.RequireRole("curator"), radioHandler.Enqueue)
		}
	}
}

// Start runs the server on the configured port
func (s *Server) Start(addr string) error {
	return s.router.Run(addr)
}
