package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/prettygood-work/benefits-chat-demo/internal/access"
	"github.com/prettygood-work/benefits-chat-demo/internal/analytics"
	"github.com/prettygood-work/benefits-chat-demo/internal/auth"
	"github.com/prettygood-work/benefits-chat-demo/internal/chat"
	"github.com/prettygood-work/benefits-chat-demo/internal/config"
	"github.com/prettygood-work/benefits-chat-demo/internal/database"
	"github.com/prettygood-work/benefits-chat-demo/internal/identity"
	"github.com/prettygood-work/benefits-chat-demo/internal/llm"
	"github.com/prettygood-work/benefits-chat-demo/internal/logging"
	"github.com/prettygood-work/benefits-chat-demo/internal/middleware"
	"github.com/prettygood-work/benefits-chat-demo/internal/monitoring"
	"github.com/prettygood-work/benefits-chat-demo/internal/resume"
	"github.com/prettygood-work/benefits-chat-demo/internal/search"
	"github.com/prettygood-work/benefits-chat-demo/internal/server"
	"github.com/prettygood-work/benefits-chat-demo/internal/store"
	"github.com/prettygood-work/benefits-chat-demo/internal/tenants"
	"github.com/prettygood-work/benefits-chat-demo/internal/tools"
	"github.com/prettygood-work/benefits-chat-demo/internal/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("concierge")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Concierge (Benefits Assistant API)")

	cfg := config.LoadConfig()
	jwtSecret := config.RequireEnv("JWT_SECRET")

	// Connect to database
	dbConfig := database.DefaultConfig()
	dbConfig.URL = cfg.DatabaseURL
	db := database.MustConnect(dbConfig, logger)
	defer func() { _ = db.Close() }()

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("concierge", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("concierge", version.Version, version.GitCommit)

	// Add health checks
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL": cfg.DatabaseURL,
		"JWT_SECRET":   jwtSecret,
	}))

	// Redis backs the resumable stream buffer. Without it the service runs in
	// passthrough mode: live streams work, resume returns 204.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Warn("Invalid REDIS_URL - stream resume disabled")
		} else {
			client := redis.NewClient(opts)
			pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := client.Ping(pingCtx).Err()
			cancel()
			if err != nil {
				logger.WithError(err).Warn("Redis unreachable - stream resume disabled")
				_ = client.Close()
			} else {
				redisClient = client
				defer func() { _ = redisClient.Close() }()
				healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(redisClient))
			}
		}
	} else {
		logger.Warn("REDIS_URL not set - stream resume disabled")
	}
	if redisClient != nil {
		resume.Setup(resume.NewRedisBuffer(redisClient, cfg.StreamBufferTTL, logger))
	}

	// Kafka carries analytics events into the wider pipeline; the rows in
	// Postgres stay authoritative either way.
	var kafkaClient *kgo.Client
	if len(cfg.KafkaBrokers) > 0 {
		client, err := analytics.NewKafkaClient(cfg.KafkaBrokers)
		if err != nil {
			logger.WithError(err).Warn("Failed to create Kafka client - analytics publishing disabled")
		} else {
			kafkaClient = client
			defer kafkaClient.Close()
			healthChecker.AddCheck("kafka", monitoring.KafkaProducerHealthCheck(kafkaClient))
		}
	} else {
		logger.Warn("KAFKA_BROKERS not set - analytics events stay local")
	}

	// Stores
	chatStore := store.NewChatStore(db)
	planStore := store.NewPlanStore(db)
	profileStore := store.NewProfileStore(db)
	documentStore := store.NewDocumentStore(db)
	userStore := identity.NewStore(db)
	tenantStore := tenants.NewStore(db)
	tenantDirectory := tenants.NewDirectory(tenantStore, tenants.DirectoryConfig{
		CacheTTL:  cfg.TenantCacheTTL,
		CacheSize: cfg.TenantCacheSize,
	})

	authorizer := access.NewAuthorizer(access.AuthorizerConfig{
		Memberships:       access.NewSQLMembershipStore(db),
		Messages:          chatStore,
		GuestDailyLimit:   cfg.GuestDailyLimit,
		RegularDailyLimit: cfg.RegularDailyLimit,
	})

	recorderConfig := analytics.RecorderConfig{
		DB:        db,
		Topic:     cfg.AnalyticsTopic,
		ClusterID: cfg.KafkaClusterID,
		Logger:    logger,
	}
	if kafkaClient != nil {
		recorderConfig.Publisher = kafkaClient
	}
	recorder := analytics.NewRecorder(recorderConfig)
	analyticsHandler := analytics.NewHandler(analytics.NewQuery(db), logger)

	llmProvider, err := llm.NewProvider(llm.Config{
		Provider: cfg.LLMProvider,
		Model:    cfg.LLMModel,
		APIKey:   cfg.LLMAPIKey,
		APIURL:   cfg.LLMAPIURL,
	})
	if err != nil {
		logger.WithError(err).Warn("Failed to initialize LLM provider")
		llmProvider = nil
	}

	var searchProvider search.Provider = search.Disabled{}
	if cfg.SearchAPIURL != "" {
		searchProvider = search.NewHTTPProvider(cfg.SearchAPIURL, cfg.SearchAPIKey)
	} else {
		logger.Warn("SEARCH_API_URL not set - knowledge base search disabled")
	}

	benefitsTools := tools.BenefitsToolsConfig{
		Plans:    planStore,
		Profiles: profileStore,
		Recorder: recorder,
		Logger:   logger,
	}
	registryTools := []tools.Tool{
		tools.NewWeatherTool(cfg.WeatherAPIURL),
		tools.NewCalculatePlanCostsTool(benefitsTools),
		tools.NewComparePlansTool(benefitsTools),
	}
	registryTools = append(registryTools, tools.NewDocumentTools(tools.DocumentToolsConfig{
		Store:    documentStore,
		Provider: llmProvider,
		Logger:   logger,
	})...)
	registry := tools.NewRegistry(registryTools...)

	orchestrator := chat.NewOrchestrator(chat.OrchestratorConfig{
		Provider: llmProvider,
		Registry: registry,
		Chats:    chatStore,
		Tenants:  tenantStore,
		Quotas:   authorizer,
		Search:   searchProvider,
		Recorder: recorder,
		Logger:   logger,
		Metrics: &chat.Metrics{
			Generations: metricsCollector.NewCounter("generations_total",
				"Generation steps started", []string{"tenant_id"}),
			ToolCalls: metricsCollector.NewCounter("tool_calls_total",
				"Tool executions by name", []string{"tool"}),
		},
		MaxRounds:   cfg.MaxToolRounds,
		MaxHistory:  cfg.MaxHistoryMessages,
		SearchLimit: cfg.SearchLimit,
	})
	chatHandler := chat.NewHandler(orchestrator, chatStore, authorizer, logger)
	authHandler := auth.NewHandler(userStore, authorizer, []byte(jwtSecret), logger)
	tenantHandler := tenants.NewHandler(tenantStore, tenantDirectory, logger)

	// Setup router with unified monitoring (health/metrics only)
	router := server.SetupServiceRouter(logger, "concierge", healthChecker, metricsCollector)
	router.Use(middleware.TenantResolverMiddleware(middleware.TenantResolverConfig{
		Directory:  tenantDirectory,
		RootDomain: cfg.RootDomain,
		Logger:     logger,
	}))

	// Auth endpoints stay reachable without a session.
	publicGroup := router.Group("/api")
	auth.RegisterRoutes(publicGroup, authHandler)

	apiGroup := router.Group("/api")
	apiGroup.Use(auth.JWTAuthMiddleware([]byte(jwtSecret)))
	chatHandler.RegisterRoutes(apiGroup)

	adminGroup := router.Group("/api")
	adminGroup.Use(auth.JWTAuthMiddleware([]byte(jwtSecret)))
	adminGroup.Use(auth.RequireRole("admin"))
	tenantHandler.RegisterRoutes(adminGroup)
	analyticsHandler.RegisterRoutes(adminGroup)

	// Start HTTP server with graceful shutdown
	serverConfig := server.DefaultConfig("concierge", cfg.Port)
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
