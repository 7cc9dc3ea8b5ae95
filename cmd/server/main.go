package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/smartcity/stationmap/internal/delivery/http"
	"github.com/smartcity/stationmap/internal/geometry"
	"github.com/smartcity/stationmap/internal/logger"
	"github.com/smartcity/stationmap/internal/repository/postgres"
	"github.com/smartcity/stationmap/internal/service"
	"github.com/smartcity/stationmap/internal/source"
	"github.com/smartcity/stationmap/pkg/utils"
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()
	log := logger.Setup()
	if envErr != nil {
		log.Info("env_file_missing", "msg", "using system environment")
	}

	// Configuration
	cfg := loadConfig()

	// Database connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Warn("database_unavailable", "err", err, "msg", "running with in-memory cache only")
		pool = nil
	} else if pool != nil {
		defer pool.Close()
		log.Info("database_connected")
	}

	// Dependency Injection: Repositories
	var repo service.Repository
	if pool != nil {
		repo = postgres.NewPostgresRepository(pool)
	} else {
		repo = postgres.NewMemoryRepository()
	}

	// Dependency Injection: Station source
	var stations service.StationSource
	switch cfg.StationSource {
	case "fixtures":
		stations = source.NewFixtures(cfg.FixturesDir)
	default:
		stations = source.NewOSM(cfg.NominatimURL, cfg.OverpassURL, cfg.OSMUserAgent)
	}
	log.Info("station_source", "kind", cfg.StationSource)

	// Dependency Injection: Services
	backend := geometry.NewPlanar()
	registry := service.NewRegistry(repo)
	if err := registry.Restore(ctx); err != nil {
		log.Error("registry_restore_failed", "err", err)
	}
	generationSvc := service.NewGenerationService(
		registry,
		repo,
		stations,
		service.DefaultPipeline(backend),
		backend,
		service.Options{
			PopularCities:        cfg.PopularCities,
			PrerenderConcurrency: cfg.PrerenderConcurrency,
			IndexCacheSize:       cfg.IndexCacheSize,
		},
	)

	// bgCtx is cancelled on shutdown; it stops queued prerender work
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	// Fiber App
	app := fiber.New(fiber.Config{
		AppName:      "Station Coverage API v1.0",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute, // first generation of a large city can take a while
		ErrorHandler: http.ErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Routes
	http.SetupRoutes(app, generationSvc, func() { generationSvc.StartPrerender(bgCtx) })

	if cfg.PrerenderOnStart {
		generationSvc.StartPrerender(bgCtx)
	}

	// Graceful shutdown
	go func() {
		log.Info("server_starting", "port", cfg.Port, "env", cfg.Env)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("server_error", "err", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("server_shutting_down")
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Warn("server_forced_shutdown", "err", err)
	}
	bgCancel()
	generationSvc.WaitBackground()
	log.Info("server_exited")
}

// connect opens and pings the pool and creates the schema. It returns a nil
// pool when no database is configured.
func connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

type Config struct {
	DatabaseURL          string
	StationSource        string
	FixturesDir          string
	NominatimURL         string
	OverpassURL          string
	OSMUserAgent         string
	PopularCities        []string
	PrerenderOnStart     bool
	PrerenderConcurrency int
	IndexCacheSize       int
	Port                 string
	Env                  string
}

func loadConfig() *Config {
	return &Config{
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		StationSource:        strings.ToLower(getEnv("STATION_SOURCE", "osm")),
		FixturesDir:          getEnv("FIXTURES_DIR", "fixtures"),
		NominatimURL:         getEnv("NOMINATIM_URL", source.DefaultNominatimURL),
		OverpassURL:          getEnv("OVERPASS_URL", source.DefaultOverpassURL),
		OSMUserAgent:         getEnv("OSM_USER_AGENT", source.DefaultUserAgent),
		PopularCities:        splitList(getEnv("POPULAR_CITIES", "")),
		PrerenderOnStart:     getEnvBool("PRERENDER_ON_START", false),
		PrerenderConcurrency: int(utils.Clamp(float64(getEnvInt("PRERENDER_CONCURRENCY", 2)), 1, 16)),
		IndexCacheSize:       getEnvInt("INDEX_CACHE_SIZE", 64),
		Port:                 getEnv("PORT", "8080"),
		Env:                  getEnv("GO_ENV", "development"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(getEnv(key, "")); err == nil && n > 0 {
		return n
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return b
	}
	return defaultValue
}

// splitList splits a ;-separated list; city names may contain commas.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
