package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/vokmon/trade-signal/internal/bot"
	"github.com/vokmon/trade-signal/internal/cache"
	"github.com/vokmon/trade-signal/internal/config"
	"github.com/vokmon/trade-signal/internal/connection"
	"github.com/vokmon/trade-signal/internal/db"
	"github.com/vokmon/trade-signal/internal/domain"
	"github.com/vokmon/trade-signal/internal/feed"
	"github.com/vokmon/trade-signal/internal/handler"
	"github.com/vokmon/trade-signal/internal/job"
	"github.com/vokmon/trade-signal/internal/logger"
	mcpserver "github.com/vokmon/trade-signal/internal/mcp"
	"github.com/vokmon/trade-signal/internal/metrics"
	"github.com/vokmon/trade-signal/internal/processor"
	"github.com/vokmon/trade-signal/internal/repository"
	"github.com/vokmon/trade-signal/internal/service"
	signalengine "github.com/vokmon/trade-signal/internal/signal"
	"github.com/vokmon/trade-signal/pkg/tracing"

	_ "github.com/vokmon/trade-signal/docs"
)

var (
	loadEnvFunc      = godotenv.Load
	loadConfigFunc   = config.Load
	newLoggerFunc    = logger.New
	initPostgresFunc = db.InitPostgres
	initRedisFunc    = cache.InitRedis
	initTracerFunc   = tracing.InitTracer
	metricsRegistry  = func() (prometheus.Registerer, prometheus.Gatherer) {
		return prometheus.DefaultRegisterer, prometheus.DefaultGatherer
	}
	newDialerFunc = func(cfg *config.Config, log zerolog.Logger) feed.Dialer {
		return feed.NewWSDialer(feed.WSConfig{
			URL:            cfg.FeedURL,
			Username:       cfg.FeedUsername,
			Password:       cfg.FeedPassword,
			PlatformID:     cfg.FeedPlatformID,
			RequestTimeout: cfg.FeedRequestTimeout,
		}, log)
	}
	newTelegramBotFunc     = bot.NewTelegramBot
	startTelegramBotFunc   = func(b *bot.TelegramBot, deps bot.Deps) { b.Start(deps) }
	startSupervisorFunc    = func(s *job.Supervisor, ctx context.Context) error { return s.Start(ctx) }
	startPurgeFunc         = func(p *job.SignalPurge, ctx context.Context) { go p.Start(ctx) }
	newRouterFunc          = gin.New
	newMCPServerFunc       = mcpserver.NewServer
	newMCPHandlerFunc      = mcpserver.NewHTTPTransportHandler
	setupSignalNotify      = ossignal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
	exitFunc               = os.Exit
)

// @title           trade-signal API
// @version         1.0
// @description     Status and signal history for the trade-signal service.

// @BasePath  /
func main() {
	envErr := loadEnvFunc()

	cfg := loadConfigFunc()
	log := newLoggerFunc(cfg.LogLevel)
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file loaded")
	}
	for _, w := range cfg.Warnings {
		log.Warn().Msg(w)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg, gatherer := metricsRegistry()
	m := metrics.New(reg)

	tp, tracer, err := initTracerFunc(ctx, cfg.OTLPEndpoint)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize tracer")
		exitFunc(1)
		return
	}
	defer func() {
		shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error shutting down tracer provider")
		}
	}()

	// Storage sinks are optional; the engine runs without them.
	var (
		signalRepo service.SignalRepository
		purger     job.SignalPurger
	)
	pool, err := initPostgresFunc(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Error().Err(err).Msg("postgres unavailable, signals will not be persisted")
	}
	if pool != nil {
		defer pool.Close()
		repo := repository.NewSignalRepository(pool, tracer)
		if err := repo.RunMigrations(ctx); err != nil {
			log.Error().Err(err).Msg("failed to run signal migrations")
			exitFunc(1)
			return
		}
		signalRepo, purger = repo, repo
	}

	var (
		latestStore  service.LatestSignalStore
		latestReader handler.LatestReader
	)
	redisClient, err := initRedisFunc(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Error().Err(err).Msg("redis unavailable, latest-signal cache disabled")
	} else {
		defer redisClient.Close()
		latest := cache.NewLatestSignalCache(redisClient, tracer, cache.DefaultLatestTTL)
		latestStore, latestReader = latest, latest
	}

	mgr := connection.NewManager(newDialerFunc(cfg, log), connection.Config{
		MaxAttempts: cfg.MaxRetryAttempts,
		RetryDelay:  cfg.RetryDelay,
	}, log, m)

	tg, err := newTelegramBotFunc(cfg.TelegramBotToken, cfg.TelegramChatIDs, log)
	if err != nil {
		log.Error().Err(err).Msg("telegram bot unavailable, alerts disabled")
	}
	var notifier service.SignalNotifier
	if alerts := tg.Alerts(); alerts != nil {
		notifier = alerts
	}
	signalService := service.NewSignalService(tracer, log, m, signalRepo, latestStore, notifier)

	engine := signalengine.NewEngine(signalengine.DefaultConfig())
	procCfg := processor.Config{
		CandleNumber:   cfg.CandleNumber,
		Interval:       cfg.AnalysisInterval,
		RequestTimeout: cfg.FeedRequestTimeout,
	}
	factory := func(src feed.CandleSource, inst domain.Instrument, candleSize int) job.Runner {
		return processor.New(processor.Params{
			Source:     src,
			Instrument: inst,
			CandleSize: candleSize,
			Engine:     engine,
			OnChange:   signalService,
			Config:     procCfg,
			Logger:     log,
			Tracer:     tracer,
			Metrics:    m,
		})
	}

	supervisor := job.NewSupervisor(tracer, log, m, mgr, factory, job.SupervisorConfig{
		TimeframesMinutes: cfg.TimeframeMinutes,
		RefreshInterval:   cfg.RefreshInterval,
	})
	mgr.Subscribe("supervisor", supervisor.OnConnected)
	go mgr.Initialize(ctx)

	quit := make(chan os.Signal, 1)
	supervisorDone := make(chan struct{})
	go func() {
		defer close(supervisorDone)
		if err := startSupervisorFunc(supervisor, ctx); err != nil {
			log.Error().Err(err).Msg("feed connection lost for good, shutting down")
			select {
			case quit <- syscall.SIGTERM:
			default:
			}
		}
	}()

	startTelegramBotFunc(tg, bot.Deps{
		Processors: supervisor,
		Connection: mgr,
		Signals:    signalService,
	})
	defer tg.Stop()

	if purger != nil {
		startPurgeFunc(job.NewSignalPurge(tracer, log, purger, cfg.SignalPurgeInterval, cfg.SignalRetention), ctx)
	}

	h := handler.New(tracer, handler.Deps{
		Signals:    signalService,
		Latest:     latestReader,
		Processors: supervisor,
		Connection: mgr,
		Gatherer:   gatherer,
	})

	r := newRouterFunc()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))
	r.Use(cors.Default())
	r.Use(otelgin.Middleware(tracing.ServiceName))
	h.RegisterRoutes(r)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	if cfg.MCPHTTPEnabled && cfg.MCPAuthToken != "" {
		mcpSrv := newMCPServerFunc(tracer, mcpserver.Deps{
			Signals:    signalService,
			Latest:     latestReader,
			Processors: supervisor,
			Connection: mgr,
		}, mcpserver.ServerConfig{RequestTimeout: cfg.MCPRequestTimeout})
		r.Any("/mcp", gin.WrapH(newMCPHandlerFunc(mcpSrv, mcpserver.HTTPHandlerConfig{
			AuthToken:       cfg.MCPAuthToken,
			RateLimitPerMin: cfg.MCPRateLimitPerMin,
		})))
		log.Info().Msg("mcp endpoint mounted at /mcp")
	}

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: r,
	}

	startHTTP := startHTTPServerFunc
	httpDone := make(chan struct{})
	go func() {
		defer close(httpDone)
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := startHTTP(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
			select {
			case quit <- syscall.SIGTERM:
			default:
			}
		}
	}()

	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Info().Msg("shutting down")

	cancel()
	<-supervisorDone
	if err := mgr.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing feed connection")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	<-httpDone

	log.Info().Msg("server exiting")
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}
