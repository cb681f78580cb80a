// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	awsx "suburbmates-workers/internal/common/aws"
	"suburbmates-workers/internal/common/camunda"
	"suburbmates-workers/internal/common/config"
	"suburbmates-workers/internal/common/database"
	apperrors "suburbmates-workers/internal/common/errors"
	"suburbmates-workers/internal/common/featureflags"
	"suburbmates-workers/internal/common/logger"
	"suburbmates-workers/internal/common/observability"
	"suburbmates-workers/internal/moderation"
	"suburbmates-workers/internal/search/listingindex"
	"suburbmates-workers/pkg/registry"

	rvl "suburbmates-workers/internal/workers/listings/review-listing"
	mc "suburbmates-workers/internal/workers/moderation/moderate-content"
	rrl "suburbmates-workers/internal/workers/search/rerank-listings"
	sl "suburbmates-workers/internal/workers/search/search-listings"
)

const registryPath = "configs/activity-registry.json"

var depRetry = &camunda.RetryConfig{
	MaxRetries: 15,
	BaseDelay:  2 * time.Second,
	MaxDelay:   30 * time.Second,
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "console").Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(cfg.App.Name, cfg.Tracing, prometheus.DefaultRegisterer)
	if err != nil {
		zapLog.Fatal("observability init failed", zap.Error(err))
	}

	// --- Init Zeebe Client with retry ---
	zeebeClient, err := camunda.Connect(ctx, &camunda.ClientConfig{
		GatewayAddress:         cfg.Camunda.BrokerAddress,
		UsePlaintextConnection: true,
		ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
	}, zapLog)
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = camunda.Retry(ctx, depRetry, zapLog, "PostgreSQL connection", func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		if err := pg.Ping(ctx); err != nil {
			pg.Close()
			return apperrors.NewDatabaseConnectionFailedError(err)
		}
		return nil
	})
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err), zap.String("details", apperrors.Normalize(err).Details))
	}
	defer pg.Close()
	if err := pg.Migrate(ctx); err != nil {
		zapLog.Fatal("postgres migration failed", zap.Error(err))
	}
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = camunda.Retry(ctx, depRetry, zapLog, "Elasticsearch connection", func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		if err := esClient.Ping(ctx); err != nil {
			return apperrors.NewElasticsearchConnectionFailedError(err)
		}
		return nil
	})
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err), zap.String("details", apperrors.Normalize(err).Details))
	}
	if err := esClient.EnsureIndex(ctx, cfg.Search.Index, listingindex.Mapping); err != nil {
		zapLog.Fatal("elasticsearch index setup failed", zap.Error(err), zap.String("index", cfg.Search.Index))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = camunda.Retry(ctx, depRetry, zapLog, "Redis connection", func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	})
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Domain dependencies ---
	flags := featureflags.NewLayered(
		cfg.FeatureFlags,
		featureflags.NewStore(pg.DB, redis.Client, cfg.Search.FlagCacheTTLDuration(), log),
	)

	baseLists := moderation.DefaultLists()
	if path := cfg.Moderation.ListsPath; path != "" {
		if baseLists, err = moderation.LoadLists(path); err != nil {
			zapLog.Fatal("moderation lists load failed", zap.Error(err), zap.String("path", path))
		}
	}

	var notifiers mc.Notifiers
	var sesClient awsx.SESService
	if aws := cfg.Integrations.AWS; aws.SES.Enabled || aws.SNS.Enabled {
		sesSDK, snsSDK, err := awsx.NewClients(ctx, aws.Region)
		if err != nil {
			zapLog.Fatal("aws client init failed", zap.Error(err))
		}
		if aws.SES.Enabled {
			sesClient = sesSDK
			notifiers.SES = sesSDK
		}
		if aws.SNS.Enabled {
			notifiers.SNS = snsSDK
		}
		zapLog.Info("AWS clients initialized", zap.String("region", aws.Region))
	}

	// --- Register workers ---
	workers := camunda.NewWorkers(zeebeClient, zapLog)

	wcfg := config.GetWorkerConfig(cfg, sl.TaskType)
	workers.Start(sl.TaskType, wcfg, sl.NewHandler(&sl.Config{
		Timeout:     config.GetDuration(wcfg.Timeout),
		Index:       cfg.Search.Index,
		DefaultSize: cfg.Search.DefaultSize,
	}, esClient.Client, log))

	wcfg = config.GetWorkerConfig(cfg, rrl.TaskType)
	workers.Start(rrl.TaskType, wcfg, rrl.NewHandler(&rrl.Config{
		Timeout:      config.GetDuration(wcfg.Timeout),
		FlagKey:      cfg.Search.RerankFlagKey,
		FlagTimeout:  cfg.Search.FlagTimeoutDuration(),
		DefaultLimit: cfg.Search.DefaultRerankTo,
	}, flags, log))

	wcfg = config.GetWorkerConfig(cfg, mc.TaskType)
	workers.Start(mc.TaskType, wcfg, mc.NewHandler(&mc.Config{
		Timeout:       config.GetDuration(wcfg.Timeout),
		BaseLists:     baseLists,
		TermsCacheKey: "moderation_terms",
		TermsTTL:      cfg.Moderation.TermsTTLDuration(),
		AdminEmail:    cfg.Moderation.AdminEmail,
		FromEmail:     cfg.Integrations.AWS.SES.FromEmail,
		TopicARN:      cfg.Moderation.SNSTopicARN,
		NotifyOnFlag:  cfg.Moderation.NotifyOnFlag,
	}, pg.DB, redis.Client, notifiers, obs, log))

	wcfg = config.GetWorkerConfig(cfg, rvl.TaskType)
	workers.Start(rvl.TaskType, wcfg, rvl.NewHandler(&rvl.Config{
		Timeout:     config.GetDuration(wcfg.Timeout),
		Index:       cfg.Search.Index,
		FromEmail:   cfg.Integrations.AWS.SES.FromEmail,
		NotifyOwner: true,
	}, pg.DB, esClient.Client, sesClient, log))

	checkRegistry(zapLog, workers.TaskTypes())
	zapLog.Info("Workers registered", zap.Strings("taskTypes", workers.TaskTypes()))

	// --- Health & Metrics Server ---
	srv := &http.Server{
		Addr:              ":8080",
		Handler:           newMux(zeebeClient, pg, esClient, redis),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("Health/Metrics server listening on :8080")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping workers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	workers.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}
	if err := zeebeClient.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error flushing telemetry", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

// checkRegistry warns about running workers that the activity registry does
// not describe. A missing registry file is not fatal.
func checkRegistry(log *zap.Logger, taskTypes []string) {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		log.Warn("activity registry not loaded", zap.Error(err))
		return
	}
	if err := reg.Validate(); err != nil {
		log.Warn("activity registry invalid", zap.Error(err))
		return
	}
	if missing := reg.Unregistered(taskTypes); len(missing) > 0 {
		log.Warn("workers missing from activity registry", zap.Strings("taskTypes", missing))
	}
}

func newMux(zeebe zbc.Client, pg *database.PostgresClient, es *database.ElasticsearchClient, redis *database.RedisClient) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		checks := map[string]func(context.Context) error{
			"zeebe": func(ctx context.Context) error {
				return camunda.HealthCheck(ctx, zeebe, 3*time.Second)
			},
			"postgres":      pg.Ping,
			"elasticsearch": es.Ping,
			"redis":         redis.Ping,
		}

		status := map[string]string{"time": time.Now().Format(time.RFC3339)}
		code := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status[name] = err.Error()
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		if code == http.StatusOK {
			status["status"] = "ready"
		} else {
			status["status"] = "degraded"
		}
		writeStatus(w, code, status)
	})

	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func writeStatus(w http.ResponseWriter, code int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
