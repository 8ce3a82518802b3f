// Command server starts the Slidecast API HTTP service.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"slidecast/internal/api"
	"slidecast/internal/auth"
	"slidecast/internal/observability/logging"
	"slidecast/internal/observability/metrics"
	"slidecast/internal/server"
	"slidecast/internal/slides"
	"slidecast/internal/storage"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	dataPath := flag.String("data", "", "path to JSON datastore")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresConnectTimeout := flag.Duration("postgres-connect-timeout", 0, "timeout when establishing Postgres connections")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	mode := flag.String("mode", "", "server runtime mode (development or production)")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	jwtSecret := flag.String("jwt-secret", "", "HMAC secret for session tokens (prefer SLIDECAST_JWT_SECRET)")
	tokenTTL := flag.Duration("token-ttl", 0, "session token lifetime")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	signinLimit := flag.Int("rate-signin-limit", 0, "maximum signin attempts per window for a single IP")
	signinWindow := flag.Duration("rate-signin-window", 0, "window for counting signin attempts")
	redisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed signin throttling")
	redisPassword := flag.String("rate-redis-password", "", "Redis password for distributed signin throttling")
	redisTLSCA := flag.String("rate-redis-tls-ca", "", "path to Redis TLS CA certificate")
	redisTLSServerName := flag.String("rate-redis-tls-server-name", "", "override Redis TLS server name")
	redisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis operations")
	presenterOrigins := flag.String("cors-presenter-origins", "", "comma separated origins for the presenter console")
	viewerOrigins := flag.String("cors-viewer-origins", "", "comma separated origins for the audience viewer")
	objectEndpoint := flag.String("object-endpoint", "", "object storage endpoint (e.g. http://127.0.0.1:9000)")
	objectRegion := flag.String("object-region", "", "object storage region")
	objectAccessKey := flag.String("object-access-key", "", "object storage access key")
	objectSecretKey := flag.String("object-secret-key", "", "object storage secret key")
	objectBucket := flag.String("object-bucket", "", "object storage bucket name")
	objectUseSSL := flag.Bool("object-use-ssl", false, "enable TLS for object storage requests")
	objectPrefix := flag.String("object-prefix", "", "object storage key prefix for slide images")
	objectPublicEndpoint := flag.String("object-public-endpoint", "", "public endpoint used for slide image URLs")
	objectTimeout := flag.Duration("object-timeout", 0, "timeout for object storage requests")
	slideDir := flag.String("slide-dir", "", "local directory for slide images when object storage is not configured")
	slideBaseURL := flag.String("slide-base-url", "", "base URL prepended to locally stored slide images")
	rasterizerBinary := flag.String("rasterizer-binary", "", "pdftoppm-compatible binary used to rasterize PDFs")
	rasterizerDPI := flag.Int("rasterizer-dpi", 0, "render resolution for PDF pages")
	uploadConcurrency := flag.Int("upload-concurrency", 0, "concurrent page uploads per deck")
	maxUploadMB := flag.Int("max-upload-mb", 0, "maximum upload size in megabytes")
	flag.Parse()

	logger := logging.New(logging.Config{Level: firstNonEmpty(*logLevel, os.Getenv("SLIDECAST_LOG_LEVEL"))})
	auditLogger := logging.WithComponent(logger, "audit")
	recorder := metrics.Default()

	serverMode := modeValue(*mode, os.Getenv("SLIDECAST_MODE"))
	listenAddr := resolveListenAddr(*addr, serverMode, os.Getenv("SLIDECAST_ADDR"))

	secret, err := resolveJWTSecret(*jwtSecret, os.Getenv("SLIDECAST_JWT_SECRET"), serverMode)
	if err != nil {
		logger.Error("failed to resolve JWT secret", "error", err)
		os.Exit(1)
	}
	if *jwtSecret != "" {
		logger.Warn("JWT secret passed on the command line; prefer SLIDECAST_JWT_SECRET")
	}

	tokenOpts := []auth.TokenOption{}
	if ttl := resolveDuration(*tokenTTL, "SLIDECAST_TOKEN_TTL", 0); ttl > 0 {
		tokenOpts = append(tokenOpts, auth.WithTokenTTL(ttl))
	}
	tokens, err := auth.NewTokenIssuer([]byte(secret), tokenOpts...)
	if err != nil {
		logger.Error("failed to configure token issuer", "error", err)
		os.Exit(1)
	}

	postgresDefaultDSN := resolvePostgresDSN(*postgresDSN)
	driver, err := resolveStorageDriver(*storageDriver, os.Getenv("SLIDECAST_STORAGE_DRIVER"), postgresDefaultDSN)
	if err != nil {
		logger.Error("failed to resolve storage driver", "error", err)
		os.Exit(1)
	}
	if serverMode == "production" {
		if err := validateProductionDatastore(driver, postgresDefaultDSN); err != nil {
			logger.Error("production datastore validation failed", "error", err)
			os.Exit(1)
		}
	}

	var store storage.Repository
	switch driver {
	case "json":
		dataFile := resolveDataPath(*dataPath, os.Getenv("SLIDECAST_DATA"))
		store, err = storage.NewStorage(dataFile)
	case "postgres":
		if postgresDefaultDSN == "" {
			logger.Error("postgres storage selected without DSN")
			os.Exit(1)
		}
		openCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		store, err = storage.NewPostgresRepository(openCtx, storage.PostgresConfig{
			DSN:             postgresDefaultDSN,
			MaxConnections:  int32(resolveInt(*postgresMaxConns, "SLIDECAST_POSTGRES_MAX_CONNS")),
			MinConnections:  int32(resolveInt(*postgresMinConns, "SLIDECAST_POSTGRES_MIN_CONNS")),
			MaxConnLifetime: resolveDuration(*postgresMaxConnLifetime, "SLIDECAST_POSTGRES_MAX_CONN_LIFETIME", 0),
			MaxConnIdleTime: resolveDuration(*postgresMaxConnIdle, "SLIDECAST_POSTGRES_MAX_CONN_IDLE", 0),
			ConnectTimeout:  resolveDuration(*postgresConnectTimeout, "SLIDECAST_POSTGRES_CONNECT_TIMEOUT", 0),
			ApplicationName: firstNonEmpty(*postgresAppName, os.Getenv("SLIDECAST_POSTGRES_APP_NAME")),
			Logger:          logging.WithComponent(logger, "storage"),
		})
		cancel()
	default:
		logger.Error("unsupported storage driver", "driver", driver)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	objectCfg := storage.ObjectStorageConfig{
		Endpoint:       firstNonEmpty(*objectEndpoint, os.Getenv("SLIDECAST_OBJECT_ENDPOINT")),
		Region:         firstNonEmpty(*objectRegion, os.Getenv("SLIDECAST_OBJECT_REGION")),
		AccessKey:      firstNonEmpty(*objectAccessKey, os.Getenv("SLIDECAST_OBJECT_ACCESS_KEY")),
		SecretKey:      firstNonEmpty(*objectSecretKey, os.Getenv("SLIDECAST_OBJECT_SECRET_KEY")),
		Bucket:         firstNonEmpty(*objectBucket, os.Getenv("SLIDECAST_OBJECT_BUCKET")),
		UseSSL:         resolveBool(*objectUseSSL, "SLIDECAST_OBJECT_USE_SSL"),
		Prefix:         firstNonEmpty(*objectPrefix, os.Getenv("SLIDECAST_OBJECT_PREFIX")),
		PublicEndpoint: firstNonEmpty(*objectPublicEndpoint, os.Getenv("SLIDECAST_OBJECT_PUBLIC_ENDPOINT")),
		RequestTimeout: resolveDuration(*objectTimeout, "SLIDECAST_OBJECT_TIMEOUT", 0),
	}

	var (
		uploader      storage.ObjectUploader
		localSlideDir string
	)
	if objectCfg.Endpoint != "" || objectCfg.Bucket != "" {
		uploader, err = storage.NewObjectUploader(objectCfg)
		if err != nil {
			logger.Error("failed to configure object storage", "error", err)
			os.Exit(1)
		}
	} else {
		localSlideDir = firstNonEmpty(*slideDir, os.Getenv("SLIDECAST_SLIDE_DIR"), "data/slides")
		baseURL := firstNonEmpty(*slideBaseURL, os.Getenv("SLIDECAST_SLIDE_BASE_URL"), "/slides")
		uploader = storage.LocalUploader{Dir: localSlideDir, BaseURL: baseURL}
		logger.Info("object storage not configured, storing slide images locally", "dir", localSlideDir)
	}

	rasterizer := slides.CommandRasterizer{
		Binary: firstNonEmpty(*rasterizerBinary, os.Getenv("SLIDECAST_RASTERIZER_BINARY")),
		DPI:    resolveInt(*rasterizerDPI, "SLIDECAST_RASTERIZER_DPI"),
	}
	processor := &slides.Processor{
		Store:       store,
		Uploader:    uploader,
		Rasterizer:  rasterizer,
		Logger:      logging.WithComponent(logger, "slides"),
		Concurrency: resolveInt(*uploadConcurrency, "SLIDECAST_UPLOAD_CONCURRENCY"),
	}

	handler := api.NewHandler(store, tokens, processor, logger)
	handler.Metrics = recorder
	if mb := resolveInt(*maxUploadMB, "SLIDECAST_MAX_UPLOAD_MB"); mb > 0 {
		handler.MaxUploadBytes = int64(mb) << 20
	}

	srv, err := server.New(handler, server.Config{
		Addr: listenAddr,
		TLS: server.TLSConfig{
			CertFile: firstNonEmpty(*tlsCert, os.Getenv("SLIDECAST_TLS_CERT")),
			KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("SLIDECAST_TLS_KEY")),
		},
		RateLimit: server.RateLimitConfig{
			GlobalRPS:     resolveFloat(*globalRPS, "SLIDECAST_RATE_GLOBAL_RPS"),
			GlobalBurst:   resolveInt(*globalBurst, "SLIDECAST_RATE_GLOBAL_BURST"),
			SigninLimit:   resolveInt(*signinLimit, "SLIDECAST_RATE_SIGNIN_LIMIT"),
			SigninWindow:  resolveDuration(*signinWindow, "SLIDECAST_RATE_SIGNIN_WINDOW", time.Minute),
			RedisAddr:     firstNonEmpty(*redisAddr, os.Getenv("SLIDECAST_RATE_REDIS_ADDR")),
			RedisPassword: firstNonEmpty(*redisPassword, os.Getenv("SLIDECAST_RATE_REDIS_PASSWORD")),
			RedisTLS: server.RedisTLSConfig{
				CAFile:     firstNonEmpty(*redisTLSCA, os.Getenv("SLIDECAST_RATE_REDIS_TLS_CA")),
				ServerName: firstNonEmpty(*redisTLSServerName, os.Getenv("SLIDECAST_RATE_REDIS_TLS_SERVER_NAME")),
			},
			RedisTimeout: resolveDuration(*redisTimeout, "SLIDECAST_RATE_REDIS_TIMEOUT", 2*time.Second),
		},
		CORS: server.CORSConfig{
			PresenterOrigins: splitAndTrim(firstNonEmpty(*presenterOrigins, os.Getenv("SLIDECAST_CORS_PRESENTER_ORIGINS"))),
			ViewerOrigins:    splitAndTrim(firstNonEmpty(*viewerOrigins, os.Getenv("SLIDECAST_CORS_VIEWER_ORIGINS"))),
		},
		Logger:        logger,
		AuditLogger:   auditLogger,
		Metrics:       recorder,
		LocalSlideDir: localSlideDir,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("Slidecast API listening", "addr", listenAddr, "mode", serverMode, "storage", driver)
		logger.Info("metrics endpoint available", "path", "/metrics")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errs:
		logger.Error("server error", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}

	if closer, ok := store.(interface{ Close(context.Context) error }); ok {
		if err := closer.Close(ctx); err != nil {
			logger.Warn("failed to close datastore", "error", err)
		}
	}

	logger.Info("server stopped")
}

func resolveJWTSecret(flagValue, envValue, mode string) (string, error) {
	secret := firstNonEmpty(flagValue, envValue)
	if secret != "" {
		return secret, nil
	}
	if mode == "production" {
		return "", fmt.Errorf("production mode requires SLIDECAST_JWT_SECRET to be set")
	}
	var buffer [32]byte
	if _, err := rand.Read(buffer[:]); err != nil {
		return "", fmt.Errorf("generate ephemeral secret: %w", err)
	}
	return hex.EncodeToString(buffer[:]), nil
}

func resolveListenAddr(flagValue, mode, envAddr string) string {
	listenAddr := strings.TrimSpace(flagValue)
	if listenAddr == "" {
		listenAddr = strings.TrimSpace(envAddr)
	}
	if listenAddr == "" {
		listenAddr = defaultListenForMode(mode)
	}
	return listenAddr
}

func modeValue(flagMode, envMode string) string {
	mode := strings.ToLower(strings.TrimSpace(flagMode))
	if mode == "" {
		mode = strings.ToLower(strings.TrimSpace(envMode))
	}
	if mode == "" {
		mode = "development"
	}
	return mode
}

func defaultListenForMode(mode string) string {
	if mode == "production" {
		return ":80"
	}
	return ":8080"
}

func resolveStorageDriver(flagValue, envValue, postgresDSN string) (string, error) {
	if driver := strings.ToLower(strings.TrimSpace(flagValue)); driver != "" {
		return driver, nil
	}
	if driver := strings.ToLower(strings.TrimSpace(envValue)); driver != "" {
		return driver, nil
	}
	if strings.TrimSpace(postgresDSN) != "" {
		return "postgres", nil
	}
	return "json", nil
}

func validateProductionDatastore(driver, resolvedPostgresDSN string) error {
	if driver != "postgres" {
		return fmt.Errorf("production mode requires the postgres datastore driver, got %q", driver)
	}
	if strings.TrimSpace(resolvedPostgresDSN) == "" {
		return fmt.Errorf("postgres storage selected without DSN")
	}
	return nil
}

func resolveDataPath(flagValue, envValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := strings.TrimSpace(envValue); env != "" {
		return env
	}
	return "data/slidecast.json"
}

func resolvePostgresDSN(flagValue string) string {
	return strings.TrimSpace(firstNonEmpty(flagValue, os.Getenv("SLIDECAST_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveFloat(flagValue float64, envKey string) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	return fallback
}

func resolveBool(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}
	if env, ok := os.LookupEnv(envKey); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return false
}
