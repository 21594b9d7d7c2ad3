// Package main provides the raster pyramid HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"go.ngs.io/raster-pyramid/internal/app"
	"go.ngs.io/raster-pyramid/internal/config"
	httpHandler "go.ngs.io/raster-pyramid/internal/http"
	"go.ngs.io/raster-pyramid/internal/usecase"
)

const version = "0.1.0"

func main() {
	// Parse command-line flags.
	showHelp := flag.Bool("help", false, "Show usage information")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}

	if *showVersion {
		fmt.Printf("raster-pyramid version %s\n", version)
		return
	}

	// Load configuration from .env files and environment.
	config.LoadDotEnv()
	cfg, err := config.Load(config.NewViper())
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := config.ConfigureLogging(cfg.LogLevel); err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}

	log.Printf("Starting raster pyramid server...")
	log.Printf("Port: %s", cfg.Port)
	log.Printf("Coverage: %s", cfg.Coverage)
	log.Printf("Database: %s", cfg.Dialect)
	log.Printf("Strategy: %s", cfg.Strategy)

	// Bootstrap the pyramid levels.
	access, db, err := app.OpenAccess(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize pyramid: %v", err)
	}
	defer func() { _ = db.Close() }()

	levels := access.Levels()
	log.Printf("Pyramid initialized with %d levels, resolution %g to %g",
		levels.Len(), levels.MostDetailed().Resolution(), levels.Coarsest().Resolution())
	for i, l := range levels.Levels() {
		log.Printf("  [%d] %s", i, l)
	}

	// Initialize use case.
	tileUC := usecase.NewTileUseCase(access)

	// Setup router.
	router := httpHandler.SetupRouter(tileUC, cfg.CORSAllowedOrigins)

	// Start server.
	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("Server listening on %s", addr)
	log.Printf("Health check: http://localhost:%s/health", cfg.Port)
	log.Printf("API endpoints:")
	log.Printf("  - GET /v1/levels")
	log.Printf("  - GET /v1/tiles")
	log.Printf("  - GET /metrics")
	if len(cfg.CORSAllowedOrigins) > 0 {
		log.Printf("CORS allowed origins: %s", strings.Join(cfg.CORSAllowedOrigins, ", "))
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// printUsage prints usage information.
func printUsage() {
	fmt.Printf("Raster Pyramid Server v%s\n\n", version)
	fmt.Println("USAGE:")
	fmt.Println("  pyramid-server [flags]")
	fmt.Println()
	fmt.Println("FLAGS:")
	fmt.Println("  -help          Show this help message")
	fmt.Println("  -version       Show version information")
	fmt.Println()
	fmt.Println("ENVIRONMENT VARIABLES (also read from .env and .env.local):")
	fmt.Println("  PYRAMID_COVERAGE               Coverage name (required)")
	fmt.Println("  PYRAMID_DIALECT                Database dialect: sqlite or postgis (default: sqlite)")
	fmt.Println("  PYRAMID_DSN                    Database connection string (default: pyramid.db)")
	fmt.Println("  PYRAMID_CRS                    Fallback CRS code (default: EPSG:4326)")
	fmt.Println("  PYRAMID_STRATEGY               Tile query strategy: streaming or bulk (default: streaming)")
	fmt.Println("  PYRAMID_WORKERS                Decode workers per query (default: one per CPU)")
	fmt.Println("  PYRAMID_DECODE_TIMEOUT         Maximum wait for decode tasks (default: 1h)")
	fmt.Println("  PYRAMID_LOG_LEVEL              Log level (default: INFO)")
	fmt.Println("  PYRAMID_PORT                   Server port (default: 8080)")
	fmt.Println("  PYRAMID_CORS_ALLOWED_ORIGINS   Comma-separated list of allowed origins (default: all origins)")
	fmt.Println("  PYRAMID_TABLES_*               Master table and column names, e.g. PYRAMID_TABLES_MASTER_TABLE")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Serve a coverage ingested with pyramidctl")
	fmt.Println("  PYRAMID_COVERAGE=dem pyramid-server")
	fmt.Println()
	fmt.Println("  # Serve from PostGIS with server-side cropping")
	fmt.Println("  PYRAMID_DIALECT=postgis PYRAMID_DSN=postgres://localhost/gis PYRAMID_STRATEGY=bulk PYRAMID_COVERAGE=dem pyramid-server")
	fmt.Println()
	fmt.Println("API ENDPOINTS:")
	fmt.Println("  GET /health                    Health check")
	fmt.Println("  GET /v1/levels                 List pyramid levels")
	fmt.Println("  GET /v1/tiles                  Get decoded tiles for a bbox and output size")
	fmt.Println("  GET /metrics                   Prometheus metrics")
	fmt.Println()
}
