package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mvrik/lantern/internal/adapters/cache"
	"github.com/mvrik/lantern/internal/adapters/database"
	"github.com/mvrik/lantern/internal/adapters/identityprovider"
	"github.com/mvrik/lantern/internal/adapters/locationrepository"
	"github.com/mvrik/lantern/internal/adapters/presenceprovider"
	"github.com/mvrik/lantern/internal/app"
	"github.com/mvrik/lantern/internal/config"
	"github.com/mvrik/lantern/internal/domain"
	"github.com/mvrik/lantern/internal/ports"
	"github.com/mvrik/lantern/internal/reporting"
	"github.com/mvrik/lantern/internal/telemetry"
)

// TODO: Put in config
const PROD_DOMAIN_SUFFIX = "lanternhub.app"
const STAGING_DOMAIN_SUFFIX = "lantern-staging.pages.dev"

const upstreamTimeout = 8 * time.Second

func main() {
	instanceID := uuid.New().String()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("instanceID", instanceID)

	fail := func(msg string, args ...any) {
		logger.Error(msg, args...)
		os.Exit(1)
	}

	ctx := context.Background()

	conf, err := config.ConfigFromEnv()
	if err != nil {
		fail("Failed to load config", "error", err.Error())
	}
	logger.Info("Loaded config", "config", conf.NonSensitiveString())

	otelShutdown, err := telemetry.SetupOTelSDK(ctx, "lantern")
	if err != nil {
		fail("Failed to initialize OpenTelemetry", "error", err.Error())
	}
	defer otelShutdown(context.Background())

	var presenceCache cache.Cache[domain.Presence]
	if conf.RedisAddr() != "" {
		presenceCache, err = cache.NewRedisCache[domain.Presence](ctx, conf.RedisAddr(), "presence", conf.CacheTTL())
		if err != nil {
			fail("Failed to initialize redis cache", "error", err.Error())
		}
		logger.Info("Initialized redis presence cache", "addr", conf.RedisAddr())
	} else {
		presenceCache = cache.NewTTLCache[domain.Presence](conf.CacheTTL())
		logger.Info("Initialized in-memory presence cache", "ttl", conf.CacheTTL().String())
	}

	httpClient := &http.Client{
		Timeout: upstreamTimeout,
	}
	identityProvider := identityprovider.NewRobloxIdentityProvider(httpClient)
	presenceProvider := presenceprovider.NewRobloxPresenceProvider(httpClient)
	logger.Info("Initialized Roblox API clients")

	sentryMiddleware, flush, err := reporting.NewSentryMiddlewareOrMock(conf)
	if err != nil {
		fail("Failed to initialize Sentry", "error", err.Error())
	}
	defer flush()
	logger.Info("Initialized Sentry middleware")

	logger.Info("Initializing database connection")
	db, err := database.NewConfiguredPostgresDatabase(conf)
	if err != nil {
		fail("Failed to initialize database connection", "error", err.Error())
	}
	logger.Info("Initialized database connection")

	repositorySchemaName := database.GetSchemaName(!conf.IsProduction())

	err = database.NewDatabaseMigrator(db, logger.With("component", "migrator")).Migrate(ctx, repositorySchemaName)
	if err != nil {
		fail("Failed to migrate database", "error", err.Error())
	}

	locationRepo := locationrepository.NewPostgres(db, repositorySchemaName)
	logger.Info("Initialized UserLocationRepository")

	allowedOrigins, err := ports.NewDomainSuffixes(PROD_DOMAIN_SUFFIX, STAGING_DOMAIN_SUFFIX)
	if err != nil {
		fail("Failed to initialize allowed origins", "error", err.Error())
	}

	resolvePresence := app.BuildResolvePresenceWithCache(
		presenceCache,
		identityProvider,
		presenceProvider,
		locationRepo,
		time.Now,
	)
	teleportUser := app.BuildTeleportUser(locationRepo)

	http.HandleFunc(
		"OPTIONS /user",
		ports.BuildCORSHandler(allowedOrigins),
	)
	http.HandleFunc(
		"POST /user",
		ports.MakeResolvePresenceHandler(
			resolvePresence,
			allowedOrigins,
			logger.With("port", "resolve"),
			sentryMiddleware,
		),
	)

	http.HandleFunc(
		"OPTIONS /teleport",
		ports.BuildCORSHandler(allowedOrigins),
	)
	http.HandleFunc(
		"POST /teleport",
		ports.MakeTeleportHandler(
			teleportUser,
			allowedOrigins,
			logger.With("port", "teleport"),
			sentryMiddleware,
		),
	)

	http.HandleFunc(
		"GET /health",
		ports.MakeHealthHandler(),
	)

	logger.Info("Init complete")
	err = http.ListenAndServe(
		fmt.Sprintf(":%s", conf.Port()),
		otelhttp.NewHandler(http.DefaultServeMux, "lantern"),
	)
	if errors.Is(err, http.ErrServerClosed) {
		logger.Info("Server shutdown")
	} else {
		fail("Server error", "error", err.Error())
	}
}
