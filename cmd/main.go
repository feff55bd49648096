package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"chat-relay/handler"
	"chat-relay/internal/config"
	"chat-relay/internal/integrations/azureopenai"
	"chat-relay/internal/integrations/paramstore"
	"chat-relay/internal/logging"
	"chat-relay/internal/metrics"
	"chat-relay/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("chat-relay exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "err", err)
	}
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		return err
	}

	logger, logCloser, err := logging.New(cfg)
	if err != nil {
		logger.Warn("log file unavailable, logging to stderr", "err", err)
	}
	defer func() { _ = logCloser.Close() }()

	// ---- Credential ----
	apiKey := cfg.APIKey
	if cfg.APIKeyParam != "" {
		apiKey, err = resolveAPIKey(ctx, cfg.APIKeyParam)
		if err != nil {
			return err
		}
		logger.Info("loaded completion credential from SSM", "parameter", cfg.APIKeyParam)
	}

	// ---- Clients ----
	completion, err := azureopenai.NewClient(azureopenai.Settings{
		Endpoint:   cfg.Endpoint,
		Deployment: cfg.DeploymentName,
		APIKey:     apiKey,
		APIVersion: cfg.APIVersion,
	},
		azureopenai.WithHTTPClient(&http.Client{Timeout: cfg.UpstreamTimeout + 5*time.Second}),
		azureopenai.WithMaxRetries(cfg.UpstreamMaxRetries),
	)
	if err != nil {
		return fmt.Errorf("create completion client: %w", err)
	}

	chatService, err := usecase.NewChatService(completion, cfg.SystemPrompt, cfg.MaxMessageLength, cfg.UpstreamTimeout)
	if err != nil {
		return fmt.Errorf("create chat service: %w", err)
	}

	// ---- Handler ----
	gin.SetMode(gin.ReleaseMode)
	opts := []handler.Option{handler.WithLogger(logger)}
	if cfg.MetricsEnabled {
		opts = append(opts, handler.WithMetrics(metrics.New()))
	}
	h, err := handler.NewHandler(chatService, opts...)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	logger.Info("chat-relay starting",
		"run_mode", cfg.RunMode,
		"deployment", completion.Deployment(),
		"api_version", cfg.APIVersion,
		"upstream_timeout", cfg.UpstreamTimeout,
	)

	if cfg.RunMode == config.RunModeLambda {
		lambda.Start(h.Handle)
		return nil
	}
	return serve(logger, cfg.Addr(), h)
}

func resolveAPIKey(ctx context.Context, param string) (string, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("load AWS config: %w", err)
	}
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return "", fmt.Errorf("create SSM client: %w", err)
	}
	return paramstore.ResolveSecret(ctx, ssmClient, param)
}

func serve(logger *slog.Logger, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
