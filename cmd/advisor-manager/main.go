// cmd/advisor-manager/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"krishmitra-advisor/internal/advisor/evidence"
	"krishmitra-advisor/internal/advisor/intent"
	"krishmitra-advisor/internal/advisor/orchestrator"
	"krishmitra-advisor/internal/advisor/router"
	"krishmitra-advisor/internal/advisor/synthesis"
	"krishmitra-advisor/internal/advisor/validator"
	"krishmitra-advisor/internal/api"
	"krishmitra-advisor/internal/common/camunda"
	"krishmitra-advisor/internal/common/config"
	"krishmitra-advisor/internal/common/database"
	"krishmitra-advisor/internal/common/llm"
	"krishmitra-advisor/internal/common/logger"
	"krishmitra-advisor/internal/common/observability"
	"krishmitra-advisor/internal/models"
	"krishmitra-advisor/internal/modules"
	"krishmitra-advisor/internal/modules/crop"
	"krishmitra-advisor/internal/modules/finance"
	"krishmitra-advisor/internal/modules/general"
	"krishmitra-advisor/internal/modules/policy"
	"krishmitra-advisor/internal/modules/weather"
	"krishmitra-advisor/internal/sessions"
	"krishmitra-advisor/pkg/registry"

	afq "krishmitra-advisor/internal/workers/advisory/answer-farm-query"
	rev "krishmitra-advisor/internal/workers/advisory/retrieve-evidence"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func buildCatalog(cfg *config.Config, b *database.Backends, log logger.Logger) (*modules.Catalog, error) {
	var prices finance.PriceSource = finance.DefaultPrices()
	if b.Postgres != nil {
		pp, err := finance.NewPostgresPrices(b.Postgres, cfg.Finance.PriceTable, finance.DefaultPrices())
		if err != nil {
			return nil, err
		}
		prices = pp
	}

	local := map[models.ModuleID]modules.Adapter{
		models.ModuleWeather: weather.New(weather.Config{
			APIKey:  cfg.Weather.APIKey,
			BaseURL: cfg.Weather.BaseURL,
			Days:    cfg.Weather.Days,
			Timeout: config.GetDuration(cfg.Orchestrator.ModuleTimeout),
		}, logger.ForComponent(log, "weather")),
		models.ModuleCrop: crop.New(logger.ForComponent(log, "crop")),
		models.ModuleFinance: finance.New(prices, finance.FollowUpPolicy{
			MinBasicParams: cfg.Finance.MinBasicParams,
			MinCostParams:  cfg.Finance.MinCostParams,
			MinTotalParams: cfg.Finance.MinTotalParams,
		}, logger.ForComponent(log, "finance")),
		models.ModulePolicy:  policy.New(),
		models.ModuleGeneral: general.New(),
	}

	catalog := modules.NewCatalog()
	for _, id := range models.CanonicalModules {
		if !config.IsModuleEnabled(cfg, string(id)) {
			log.Info("module disabled", map[string]interface{}{"module": string(id)})
			continue
		}
		if mc, ok := cfg.Modules[string(id)]; ok && mc.BaseURL != "" {
			catalog.Register(modules.NewHTTPAdapter(id, mc.BaseURL, config.GetDuration(mc.Timeout), 1))
			log.Info("remote module registered", map[string]interface{}{"module": string(id), "baseUrl": mc.BaseURL})
			continue
		}
		catalog.Register(local[id])
	}
	return catalog, nil
}

func buildEvidence(ctx context.Context, cfg *config.Config, b *database.Backends, llmClient *llm.Client, log logger.Logger) (*evidence.Store, error) {
	corpus, err := evidence.NewCorpus(evidence.SeedDocuments())
	if cfg.Evidence.CorpusPath != "" {
		corpus, err = evidence.LoadCorpus(cfg.Evidence.CorpusPath)
	}
	if err != nil {
		return nil, fmt.Errorf("load evidence corpus: %w", err)
	}

	ec := cfg.Evidence
	var embedder evidence.Embedder = evidence.NewHashEmbedder(ec.Dimensions)
	if ec.Embedder == "llm" {
		embedder = evidence.NewLLMEmbedder(llmClient, ec.Dimensions)
	}

	var index evidence.VectorIndex
	switch ec.Backend {
	case "pgvector":
		pgi, err := evidence.NewPgVectorIndex(b.Postgres, ec.Table, ec.Dimensions)
		if err != nil {
			return nil, err
		}
		if err := pgi.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("prepare pgvector table: %w", err)
		}
		index = pgi
	case "elasticsearch":
		esi := evidence.NewElasticIndex(b.Elasticsearch.Client, ec.Index, ec.Dimensions)
		if err := esi.EnsureIndex(ctx); err != nil {
			return nil, fmt.Errorf("prepare elasticsearch index: %w", err)
		}
		index = esi
	default:
		index = evidence.NewMemoryIndex()
	}

	store := evidence.NewStore(corpus, index, embedder, evidence.Config{
		TopK:       ec.TopK,
		RetryDelay: config.GetDuration(ec.RetryDelay),
	}, logger.ForComponent(log, "evidence"))

	// an unseeded index still serves lexical results, so this is not fatal
	if err := store.Seed(ctx); err != nil {
		log.Warn("evidence index not seeded", map[string]interface{}{"backend": ec.Backend, "error": err.Error()})
	}
	return store, nil
}

func main() {
	zapLog := logger.New("info", "json")
	zapLog.Info("Starting advisor manager...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}
	zapLog = logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	obs := observability.New(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		JaegerEndpoint: cfg.Observability.JaegerEndpoint,
		SampleRatio:    cfg.Observability.SampleRatio,
	}, log)
	defer obs.Shutdown()

	ctx := context.Background()
	b, err := database.Open(ctx, cfg.Database, func(op func() error, attempts int, name string) error {
		return retryWithBackoff(op, attempts, 2*time.Second, zapLog, name)
	})
	if err != nil {
		zapLog.Fatal("backend connection failed after retries", zap.Error(err))
	}
	defer b.Close()
	zapLog.Info("Backends connected", zap.Strings("backends", b.Names()))

	var (
		llmClient *llm.Client
		completer intent.Completer
	)
	if cfg.LLM.Enabled() {
		llmClient, err = llm.NewClient(llm.Config{
			BaseURL:        cfg.LLM.BaseURL,
			APIKey:         cfg.LLM.APIKey,
			Model:          cfg.LLM.Model,
			EmbeddingModel: cfg.LLM.EmbeddingModel,
			MaxRetries:     cfg.LLM.MaxRetries,
		})
		if err != nil {
			zapLog.Fatal("llm client init failed", zap.Error(err))
		}
		completer = llmClient
	} else {
		zapLog.Warn("llm not configured, intent analysis uses keyword matching only")
	}

	reg, err := registry.LoadOrDefault(cfg.RegistryPath)
	if err != nil {
		zapLog.Fatal("module registry invalid", zap.String("path", cfg.RegistryPath), zap.Error(err))
	}

	catalog, err := buildCatalog(cfg, b, log)
	if err != nil {
		zapLog.Fatal("module catalog init failed", zap.Error(err))
	}

	store, err := buildEvidence(ctx, cfg, b, llmClient, log)
	if err != nil {
		zapLog.Fatal("evidence store init failed", zap.Error(err))
	}

	timeouts := make(map[models.ModuleID]time.Duration)
	for id, mc := range cfg.Modules {
		timeouts[models.ModuleID(id)] = config.GetDuration(mc.Timeout)
	}
	budget := config.GetDuration(cfg.Orchestrator.RequestBudget)

	var (
		history   api.History
		recorder  afq.HistoryRecorder
		turnState orchestrator.SessionContext
	)
	checks := map[string]api.ReadinessCheck{}
	for name, check := range b.Checks() {
		checks[name] = check
	}
	if b.Redis != nil {
		s := sessions.NewStore(b.Redis.Client, sessions.Config{
			TTL:        time.Duration(cfg.Sessions.TTL) * time.Second,
			MaxEntries: cfg.Sessions.MaxEntries,
			ContextTTL: time.Duration(cfg.Sessions.ContextTTL) * time.Second,
		}, logger.ForComponent(log, "sessions"))
		history, recorder, turnState = s, s, s
	} else {
		zapLog.Warn("redis not configured, sessions keep no history or follow-up context")
	}

	advisor := orchestrator.New(orchestrator.Deps{
		Intent: intent.NewAnalyzer(completer, reg, config.GetDuration(cfg.LLM.IntentTimeout), logger.ForComponent(log, "intent")),
		Router: router.New(catalog, reg, router.Config{
			ModuleTimeout: config.GetDuration(cfg.Orchestrator.ModuleTimeout),
			RequestBudget: budget,
			Timeouts:      timeouts,
			Recorder:      obs,
		}, logger.ForComponent(log, "router")),
		Evidence: store,
		Synthesizer: synthesis.New(synthesis.Config{
			MinWeight:     cfg.Orchestrator.MinWeight,
			DegradedFloor: cfg.Orchestrator.DegradedFloor,
			MaxEvidence:   cfg.Orchestrator.MaxEvidence,
		}, reg),
		Validator: validator.New(validator.Config{
			PublishThreshold: cfg.Orchestrator.PublishThreshold,
			DegradedFloor:    cfg.Orchestrator.DegradedFloor,
		}, logger.ForComponent(log, "validator")),
		Recorder: obs,
		Sessions: turnState,
	}, budget, logger.ForComponent(log, "orchestrator"))

	var workers []worker.JobWorker
	if cfg.Camunda.Enabled {
		var zc *camunda.Client
		err = retryWithBackoff(func() error {
			var err error
			zc, err = camunda.NewClient(cfg.Camunda.BrokerAddress)
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		defer zc.Close()
		checks["zeebe"] = zc.HealthCheck
		zapLog.Info("Zeebe client connected successfully")

		if config.IsWorkerEnabled(cfg, afq.TaskType) {
			wc := config.GetWorkerConfig(cfg, afq.TaskType)
			handler := afq.NewHandler(&afq.Config{
				Timeout:        config.GetDuration(wc.Timeout),
				RecordSessions: true,
			}, advisor, recorder, logger.ForComponent(log, afq.TaskType))
			workers = append(workers, camunda.StartWorker(zc.GetClient(), camunda.WorkerOptions{
				TaskType:      afq.TaskType,
				MaxJobsActive: wc.MaxJobsActive,
				Timeout:       config.GetDuration(wc.Timeout),
			}, handler, log))
		}

		if config.IsWorkerEnabled(cfg, rev.TaskType) {
			wc := config.GetWorkerConfig(cfg, rev.TaskType)
			handler := rev.NewHandler(&rev.Config{
				Timeout: config.GetDuration(wc.Timeout),
			}, store, logger.ForComponent(log, rev.TaskType))
			workers = append(workers, camunda.StartWorker(zc.GetClient(), camunda.WorkerOptions{
				TaskType:      rev.TaskType,
				MaxJobsActive: wc.MaxJobsActive,
				Timeout:       config.GetDuration(wc.Timeout),
			}, handler, log))
		}
	}

	gin.SetMode(gin.ReleaseMode)
	srv := api.NewServer(advisor, history, checks, logger.ForComponent(log, "api"))
	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      srv.Handler(),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	zapLog.Info("Advisor manager started",
		zap.Int("modules", len(catalog.IDs())),
		zap.Int("workers", len(workers)),
		zap.String("evidenceBackend", cfg.Evidence.Backend),
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	zapLog.Info("Shutting down advisor manager...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("http server shutdown", zap.Error(err))
	}
	for _, w := range workers {
		w.Close()
		w.AwaitClose()
	}
	zapLog.Info("Advisor manager stopped")
}
