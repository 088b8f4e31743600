package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/relaystack/toolhost/internal/credential"
	"github.com/relaystack/toolhost/internal/embed"
	"github.com/relaystack/toolhost/internal/host"
	"github.com/relaystack/toolhost/internal/mcp"
	"github.com/relaystack/toolhost/internal/rpc"
	toolhostv1 "github.com/relaystack/toolhost/internal/rpc/toolhostv1"
	"github.com/relaystack/toolhost/internal/session"
	"github.com/relaystack/toolhost/internal/storage"
	"github.com/relaystack/toolhost/internal/tools/builtin"
)

const serverVersion = "0.1.0"

func main() {
	// Logger
	logger := mustBuildLogger(envOrDefault("TOOLHOST_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from env
	grpcPort := envOrDefault("TOOLHOST_GRPC_PORT", "50061")
	httpPort := envOrDefault("TOOLHOST_HTTP_PORT", "8085")
	handlerTimeoutMs := envOrDefaultInt("TOOLHOST_HANDLER_TIMEOUT_MS", 10000)
	sessionIdleTTL := envOrDefaultInt("TOOLHOST_SESSION_IDLE_TTL_S", 1800)
	authCacheTTL := envOrDefaultInt("TOOLHOST_AUTH_CACHE_TTL_S", 30)
	embedModel := os.Getenv("TOOLHOST_EMBED_MODEL")
	openaiKey := os.Getenv("OPENAI_API_KEY")
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	postgresDSN := os.Getenv("POSTGRES_DSN")

	logger.Info("starting toolhost server",
		zap.String("grpc_port", grpcPort),
		zap.String("http_port", httpPort),
		zap.Int("handler_timeout_ms", handlerTimeoutMs),
	)

	// Storage — ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	if clickhouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer writer.Close()

	// Auth and credentials — Postgres if DSN provided, otherwise static
	var authenticator session.Authenticator
	var source credential.Source
	if postgresDSN != "" {
		db, err := sql.Open("pgx", postgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(context.Background()); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}
		authenticator = session.NewPostgresAuthenticator(session.PostgresAuthConfig{
			DB:       db,
			CacheTTL: time.Duration(authCacheTTL) * time.Second,
			Logger:   logger,
		})
		source = credential.NewPostgresSource(db)
		logger.Info("postgres authenticator and credential source connected")
	} else {
		authenticator = session.NewStaticAuthenticator()
		static := credential.NewStaticSource()
		// Lets http_fetch run out of the box in development.
		static.SetSystem("outbound_http", credential.Binding{})
		source = static
		logger.Info("using static auth and credentials (no POSTGRES_DSN)")
	}

	store := session.NewMemoryStore(session.MemoryStoreConfig{
		Authenticator: authenticator,
		IdleTTL:       time.Duration(sessionIdleTTL) * time.Second,
		Logger:        logger,
	})
	resolver := credential.NewResolver(source, logger)

	// Embedder — OpenAI when a key is present, deterministic local otherwise
	var embedder embed.Embedder
	if openaiKey != "" {
		embedder = embed.NewOpenAIEmbedder(openaiKey, embedModel)
		logger.Info("openai embedder configured")
	} else {
		embedder = embed.NewLocalEmbedder(256)
		logger.Info("no OPENAI_API_KEY set, using local embedder")
	}

	// Assemble the host with the compiled-in tool set
	h, err := host.New(context.Background(), host.Config{
		Sessions:       store,
		Resolver:       resolver,
		Writer:         writer,
		Embedder:       embedder,
		HandlerTimeout: time.Duration(handlerTimeoutMs) * time.Millisecond,
		Logger:         logger,
	}, builtin.All()...)
	if err != nil {
		logger.Fatal("host assembly failed", zap.Error(err))
	}
	if err := h.Start(context.Background()); err != nil {
		logger.Fatal("host start failed", zap.Error(err))
	}

	// gRPC server
	grpcServer := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     5 * time.Minute,
			MaxConnectionAge:      30 * time.Minute,
			MaxConnectionAgeGrace: 10 * time.Second,
			Time:                  30 * time.Second,
			Timeout:               5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.MaxRecvMsgSize(4*1024*1024),
		grpc.MaxSendMsgSize(4*1024*1024),
	)

	toolService := rpc.NewServer(h.Registry, store, h.Dispatcher, logger)
	toolhostv1.RegisterToolServiceServer(grpcServer, toolService)

	// Health service for orchestrator health checks
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(toolhostv1.ServiceName, healthpb.HealthCheckResponse_SERVING)

	// Enable reflection for debugging with grpcurl
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", ":"+grpcPort)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("port", grpcPort), zap.Error(err))
	}

	// Assistant-protocol HTTP server
	mcpHandler := mcp.NewHandler(mcp.Config{
		Registry:   h.Registry,
		Sessions:   store,
		Dispatcher: h.Dispatcher,
		Embedder:   embedder,
		Version:    serverVersion,
		Logger:     logger,
	})
	httpServer := &http.Server{
		Addr:              ":" + httpPort,
		Handler:           mcpHandler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("assistant protocol listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		healthServer.SetServingStatus(toolhostv1.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
		grpcServer.GracefulStop()
		if err := h.Stop(shutdownCtx); err != nil {
			logger.Warn("tool teardown", zap.Error(err))
		}
	}()

	logger.Info("toolhost grpc listening", zap.String("addr", lis.Addr().String()))
	if err := grpcServer.Serve(lis); err != nil {
		logger.Fatal("grpc server failed", zap.Error(err))
	}
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
