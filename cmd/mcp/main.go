package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	ossignal "os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/vokmon/trade-signal/internal/cache"
	"github.com/vokmon/trade-signal/internal/config"
	"github.com/vokmon/trade-signal/internal/db"
	"github.com/vokmon/trade-signal/internal/logger"
	mcpserver "github.com/vokmon/trade-signal/internal/mcp"
	"github.com/vokmon/trade-signal/internal/repository"
	"github.com/vokmon/trade-signal/internal/service"
	"github.com/vokmon/trade-signal/pkg/tracing"
)

const defaultMCPHTTPMaxBodyBytes int64 = 1 << 20

var (
	loadEnvFunc    = godotenv.Load
	loadConfigFunc = config.Load
	// stdout carries the stdio transport, so logs go to stderr.
	newLoggerFunc = func(level string) zerolog.Logger {
		return logger.NewWithWriter(os.Stderr, level)
	}
	initPostgresFunc  = db.InitPostgres
	initRedisFunc     = cache.InitRedis
	initTracerFunc    = tracing.InitTracer
	newMCPServerFunc  = mcpserver.NewServer
	newMCPHandlerFunc = mcpserver.NewHTTPTransportHandler
	runStdioFunc      = func(ctx context.Context, server *sdkmcp.Server) error {
		return server.Run(ctx, &sdkmcp.StdioTransport{})
	}
	startHTTPServerFunc  = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFn = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
	setupSignalNotify    = ossignal.Notify
	waitForSignalFunc    = func(quit <-chan os.Signal) { <-quit }
	exitFunc             = os.Exit
)

// The standalone MCP server reads stored history only. Processor and
// connection status live in the signal server process, which mounts the
// same tools at /mcp.
func main() {
	envErr := loadEnvFunc()
	cfg := loadConfigFunc()
	log := newLoggerFunc(cfg.LogLevel)
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file loaded")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, tracer, err := initTracerFunc(ctx, cfg.OTLPEndpoint)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize tracer")
		exitFunc(1)
		return
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("error shutting down tracer provider")
		}
	}()

	deps := mcpserver.Deps{}
	var repo service.SignalRepository
	pool, err := initPostgresFunc(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Error().Err(err).Msg("postgres unavailable, signal history disabled")
	}
	if pool != nil {
		defer pool.Close()
		repo = repository.NewSignalRepository(pool, tracer)
	}
	if redisClient, err := initRedisFunc(ctx, cfg.RedisURL, log); err != nil {
		log.Error().Err(err).Msg("redis unavailable, latest-signal lookups disabled")
	} else {
		defer redisClient.Close()
		deps.Latest = cache.NewLatestSignalCache(redisClient, tracer, cache.DefaultLatestTTL)
	}
	deps.Signals = service.NewSignalService(tracer, log, nil, repo, nil, nil)

	mcpSrv := newMCPServerFunc(tracer, deps, mcpserver.ServerConfig{RequestTimeout: cfg.MCPRequestTimeout})

	switch cfg.MCPTransport {
	case "", "stdio":
		err = runStdioFunc(ctx, mcpSrv)
	case "http":
		err = runHTTPMode(ctx, cancel, cfg, mcpSrv, log)
	default:
		err = fmt.Errorf("unsupported MCP_TRANSPORT: %s", cfg.MCPTransport)
	}
	if err != nil {
		log.Error().Err(err).Str("transport", cfg.MCPTransport).Msg("mcp server failed")
		exitFunc(1)
	}
}

func runHTTPMode(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, mcpSrv *sdkmcp.Server, log zerolog.Logger) error {
	if !cfg.MCPHTTPEnabled {
		return errors.New("MCP_HTTP_ENABLED must be true when MCP_TRANSPORT=http")
	}
	if cfg.MCPAuthToken == "" {
		return errors.New("MCP_AUTH_TOKEN is required when MCP_TRANSPORT=http")
	}

	handler := newMCPHandlerFunc(mcpSrv, mcpserver.HTTPHandlerConfig{
		AuthToken:       cfg.MCPAuthToken,
		RateLimitPerMin: cfg.MCPRateLimitPerMin,
		MaxBodyBytes:    defaultMCPHTTPMaxBodyBytes,
	})

	addr := net.JoinHostPort(cfg.MCPHTTPBind, strconv.Itoa(cfg.MCPHTTPPort))
	srv := &http.Server{Addr: addr, Handler: handler}

	quit := make(chan os.Signal, 1)
	startHTTP := startHTTPServerFunc
	httpDone := make(chan struct{})
	go func() {
		defer close(httpDone)
		log.Info().Str("addr", addr).Msg("mcp http server listening")
		if err := startHTTP(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("mcp http server failed")
			select {
			case quit <- syscall.SIGTERM:
			default:
			}
		}
	}()

	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	err := shutdownHTTPServerFn(srv, shutdownCtx)
	<-httpDone
	if err != nil {
		return fmt.Errorf("mcp server forced to shutdown: %w", err)
	}
	return nil
}
