package app

import (
	"careermap_backend/internal/config"
	"careermap_backend/internal/controller"
	"careermap_backend/internal/repository"
	"careermap_backend/internal/service"
	"careermap_backend/internal/worker"
	"careermap_backend/pkg/configwatcher"
	"careermap_backend/pkg/database"
	"careermap_backend/pkg/llm"
	"careermap_backend/pkg/logger"
	"careermap_backend/pkg/monitoring"
	"careermap_backend/pkg/queue"
	"careermap_backend/pkg/security"
	"careermap_backend/pkg/tracing"
	"careermap_backend/pkg/vectorstore"
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ModeAll    = "all"
	ModeAPI    = "api"
	ModeWorker = "worker"

	configDir = "configs"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	Queue           *queue.Queue
	services        *services
	worker          *worker.Pool
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type repositories struct {
	assessment *repository.AssessmentRepository
	roadmap    *repository.RoadmapRepository
	resource   *repository.ResourceRepository
}

type services struct {
	ai         *service.AIService
	youtube    *service.YouTubeService
	semantic   *service.SemanticIndexService
	resource   *service.ResourceService
	roadmap    *service.RoadmapService
	assessment *service.AssessmentService
}

type controllers struct {
	assessment *controller.AssessmentController
	roadmap    *controller.RoadmapController
	resource   *controller.ResourceController
	health     *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		assessment: repository.NewAssessmentRepository(db),
		roadmap:    repository.NewRoadmapRepository(db),
		resource:   repository.NewResourceRepository(db),
	}
}

// newBroker 任务状态始终在 Redis，投递通道可切换为 RabbitMQ
func newBroker(cfg *config.Config, rdb *redis.Client) (queue.Broker, error) {
	switch cfg.Queue.Broker {
	case "rabbitmq":
		return queue.NewAMQPBroker(cfg.Queue.RabbitMQURL, cfg.Queue.Name, cfg.Queue.Concurrency)
	default:
		return queue.NewRedisBroker(rdb, cfg.Queue.Name), nil
	}
}

func (a *App) initServices(ctx context.Context, repos *repositories, cfg *config.Config) (*services, error) {
	client, embedder, err := llm.New(ctx, llm.Config{
		Provider:       cfg.AI.Provider,
		BaseURL:        cfg.AI.BaseURL,
		APIKey:         cfg.AI.APIKey,
		Model:          cfg.AI.Model,
		EmbeddingModel: cfg.AI.EmbeddingModel,
		Dimension:      cfg.Vector.Dimension,
		Timeout:        cfg.AI.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init llm client: %w", err)
	}

	var index service.VectorIndex
	if cfg.Vector.Enabled {
		store, err := vectorstore.New(vectorstore.Config{
			URL:        cfg.Vector.URL,
			Collection: cfg.Vector.Collection,
			Dimension:  cfg.Vector.Dimension,
		})
		if err != nil {
			return nil, fmt.Errorf("init vector store: %w", err)
		}
		index = store
	} else {
		embedder = nil
	}

	yt, err := service.NewYouTubeService(ctx, cfg.YouTube)
	if err != nil {
		return nil, err
	}

	semantic := service.NewSemanticIndexService(index, embedder, repos.resource)
	return &services{
		ai:         service.NewAIService(client),
		youtube:    yt,
		semantic:   semantic,
		resource:   service.NewResourceService(repos.resource, semantic, yt, cfg.Resource),
		roadmap:    service.NewRoadmapService(repos.roadmap, repos.assessment, a.Queue),
		assessment: service.NewAssessmentService(repos.assessment),
	}, nil
}

func (a *App) initControllers(s *services) *controllers {
	return &controllers{
		assessment: controller.NewAssessmentController(s.assessment),
		roadmap:    controller.NewRoadmapController(s.roadmap),
		resource:   controller.NewResourceController(s.resource),
		health:     controller.NewHealthController(a.DB, a.Redis),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// applyConfig 配置文件变更后只刷新可热更新的参数
func (a *App) applyConfig(cfg *config.Config) {
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
	logger.Log.Info("Configuration reloaded")
}

func NewApp(cfg *config.Config) *App {
	if cfg.Mode == "" {
		cfg.Mode = ModeAll
	}
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully", zap.String("mode", cfg.Mode))

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	app := &App{Config: cfg, DB: db}
	if cfg.MigrateOnly {
		return app
	}

	rdb, err := database.InitRedis(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}
	app.Redis = rdb

	broker, err := newBroker(cfg, rdb)
	if err != nil {
		logger.Log.Fatal("Failed to initialize queue broker", zap.String("broker", cfg.Queue.Broker), zap.Error(err))
	}
	app.Queue = queue.New(rdb, broker, queue.Options{
		Name:         cfg.Queue.Name,
		Retention:    cfg.Queue.Retention,
		StallTimeout: cfg.Queue.StallTimeout,
	})

	repos := app.initRepositories(db)
	svcs, err := app.initServices(context.Background(), repos, cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize services", zap.Error(err))
	}
	app.services = svcs
	app.RegisterConfigCallback(func(c *config.Config) {
		svcs.resource.UpdateSettings(c.Resource)
	})

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	if cfg.Mode != ModeWorker {
		if cfg.Server.Mode == "release" {
			gin.SetMode(gin.ReleaseMode)
		}
		router := gin.Default()
		app.setupMiddlewares(router, cfg)
		app.registerRoutes(router, app.initControllers(svcs), cfg)
		app.Router = router
	}

	if cfg.Mode != ModeAPI {
		app.worker = worker.NewPool(app.Queue, svcs.roadmap, svcs.ai, svcs.resource, worker.Options{
			Concurrency: cfg.Queue.Concurrency,
		})
	}

	return app
}

// SyncEmbeddings 重建向量索引后返回，用于 -sync-embeddings
func (a *App) SyncEmbeddings(ctx context.Context) error {
	if !a.services.semantic.Enabled() {
		return fmt.Errorf("vector index is disabled")
	}
	n, err := a.services.semantic.Rebuild(ctx)
	if err != nil {
		return err
	}
	logger.Log.Info("Embeddings synced", zap.Int("resources", n))
	return nil
}

func (a *App) initSemanticIndex(ctx context.Context) {
	semantic := a.services.semantic
	if !semantic.Enabled() {
		return
	}
	if err := semantic.Init(ctx); err != nil {
		logger.Log.Warn("Vector collection init failed, semantic search degraded", zap.Error(err))
		return
	}
	if !a.Config.Vector.SyncOnStartup {
		return
	}
	go func() {
		if _, err := semantic.Rebuild(ctx); err != nil {
			logger.Log.Error("Embedding sync on startup failed", zap.Error(err))
		}
	}()
}

func (a *App) Run() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.initSemanticIndex(ctx)
	go configwatcher.WatchConfig(ctx, configDir, a.applyConfig)

	if a.worker != nil {
		a.worker.Start(ctx)
	}

	var srv *http.Server
	if a.Router != nil {
		srv = &http.Server{
			Addr:    ":" + a.Config.Server.Port,
			Handler: a.Router,
		}
		go func() {
			logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Log.Fatal("listen failed", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	logger.Log.Info("Shutting down...")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("Server forced to shutdown", zap.Error(err))
		}
		cancel()
	}

	if a.worker != nil {
		done := make(chan struct{})
		go func() {
			a.worker.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(30 * time.Second):
			logger.Log.Warn("Worker did not stop in time, in-flight jobs will be recovered")
		}
	}

	a.Close()
	logger.Log.Info("Server exiting")
}

// Close 释放队列、Redis 与数据库连接
func (a *App) Close() {
	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil {
			logger.Log.Error("Close queue failed", zap.Error(err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(context.Background()); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		sqlDB.Close()
	}
	logger.Log.Sync()
}
