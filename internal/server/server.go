package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"backend-runcheer/internal/auth"
	"backend-runcheer/internal/config"
	"backend-runcheer/internal/course"
	"backend-runcheer/internal/groups"
	"backend-runcheer/internal/observability"
	"backend-runcheer/internal/progress"
	"backend-runcheer/internal/proxy"
	"backend-runcheer/internal/storage"
	"backend-runcheer/internal/stream"
	"backend-runcheer/internal/tracking"
	"backend-runcheer/internal/upstream"
	"backend-runcheer/internal/users"
)

const (
	bodyLimit      = 16 << 20
	proxyCacheSize = 1024
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Stream   *stream.Hub
	Courses  *course.Registry
	Tracking *tracking.Manager
	Logger   *slog.Logger
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}

	registry, err := course.DefaultRegistry(cfg.CourseDir)
	if err != nil {
		return nil, fmt.Errorf("load courses: %w", err)
	}
	loc, err := time.LoadLocation(cfg.EventTimezone)
	if err != nil {
		return nil, fmt.Errorf("event timezone: %w", err)
	}
	blob, err := storage.NewBlob(context.Background(), storage.BlobConfig{
		Backend:        cfg.BlobBackend,
		Dir:            cfg.BlobDir,
		PublicURL:      cfg.BlobPublicURL,
		GCSBucket:      cfg.GCSBucket,
		GCSCredentials: cfg.GCSCredentials,
		S3Bucket:       cfg.S3Bucket,
		S3Region:       cfg.S3Region,
	})
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{BodyLimit: bodyLimit})
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:     app,
		Cfg:     cfg,
		DB:      db,
		Redis:   redisClient,
		Stream:  stream.NewHub(redisClient, log),
		Courses: registry,
		Logger:  log,
	}

	usersSvc := users.NewService(db)
	groupsSvc := groups.NewService(db)
	s.Tracking = tracking.NewManager(
		groupsSvc,
		registry,
		upstream.NewClient(cfg.ProxyBaseURL, cfg.FetchTimeout),
		progress.NewEstimator(loc),
		s.Stream,
		tracking.Options{
			RefreshInterval:    cfg.RefreshInterval,
			RepositionInterval: cfg.RepositionInterval,
			FetchTimeout:       cfg.FetchTimeout,
			Logger:             log,
		},
	)
	s.Stream.SetSnapshot(s.Tracking.Snapshot)

	var cache proxy.Cache = proxy.NewMemoryCache(proxyCacheSize, cfg.ProxyCacheTTL)
	if redisClient != nil {
		cache = proxy.NewRedisCache(redisClient, cfg.ProxyCacheTTL)
	}

	authSvc := auth.NewService(cfg.JWTSecret, db, auth.NewKakaoClient(auth.KakaoConfig{
		ClientID:     cfg.KakaoRestAPIKey,
		ClientSecret: cfg.KakaoClientSecret,
		RedirectURI:  cfg.KakaoRedirectURI,
		AuthURL:      cfg.KakaoAuthURL,
		TokenURL:     cfg.KakaoTokenURL,
		ProfileURL:   cfg.KakaoProfileURL,
	}), usersSvc)

	jwtMiddleware := auth.JWTMiddleware(cfg.JWTSecret)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", observability.MetricsHandler())

	proxy.RegisterRoutes(app, proxy.NewService(cfg.UpstreamBaseURL, cache, cfg.FetchTimeout, log))
	course.RegisterRoutes(app.Group("/courses"), registry)
	auth.RegisterRoutes(app.Group("/auth"), authSvc)

	usersGroup := app.Group("/users")
	users.RegisterRoutes(usersGroup, usersSvc, jwtMiddleware)
	groups.RegisterUserRoutes(usersGroup, groupsSvc)

	groups.RegisterRoutes(app.Group("/groups"), groupsSvc, jwtMiddleware)
	storage.RegisterRoutes(app.Group("/images"), storage.NewService(db, blob), jwtMiddleware)
	tracking.RegisterRoutes(app.Group("/tracking"), s.Tracking, jwtMiddleware)
	stream.RegisterRoutes(app.Group("/stream"), s.Stream)

	if cfg.BlobBackend == "" || cfg.BlobBackend == "local" {
		if cfg.BlobDir != "" && cfg.BlobPublicURL != "" {
			app.Static(cfg.BlobPublicURL, cfg.BlobDir)
		}
	}
	return s, nil
}

// Close stops every tracking session and the stream hub.
func (s *Server) Close() {
	s.Tracking.Close()
	s.Stream.Close()
}
