// Package main is the entrypoint for the Retry Scheduler Lambda function.
//
// The Retry Scheduler runs every minute via an EventBridge rule. It finds
// delivery records in the RETRY_SCHEDULED state whose next attempt time has
// passed and republishes a delivery task for each, feeding them back to the
// delivery worker. The sweep honors the pipeline kill switch: when the
// delivery worker is disabled the scheduler stops republishing.
//
// This file handles dependency wiring (Cold Start) and delegates the sweep
// logic to the internal/delivery package (Sweeper.Sweep).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"stormwatch/internal/config"
	"stormwatch/internal/db"
	"stormwatch/internal/delivery"
	"stormwatch/internal/queue"
	"stormwatch/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

var _ types.Logger = (*slogAdapter)(nil)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	typedLogger := &slogAdapter{logger: logger}

	logger.Info("retry scheduler initializing (cold start)",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
	)

	ctx := context.Background()

	awsCfg, err := loadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err.Error())
		os.Exit(1)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to initialize database pool", "error", err.Error())
		os.Exit(1)
	}
	defer pool.Close()

	deliveryRepo := db.NewDeliveryRepository(pool)

	clock := types.RealClock{}
	sqsClient := sqs.NewFromConfig(awsCfg)
	tasks := queue.NewTaskPublisher(sqsClient, cfg.AWS, typedLogger, clock)

	var metrics delivery.Metrics = delivery.NoopMetrics{}
	if cfg.Environment != "local" {
		metrics = delivery.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), typedLogger)
	}

	sweeper := delivery.NewSweeper(
		deliveryRepo,
		tasks,
		metrics,
		clock,
		typedLogger,
		cfg.Delivery.RetryPollerBatchSize,
		cfg.Delivery.WorkerEnabled,
	)

	logger.Info("retry scheduler initialized",
		"batch_size", cfg.Delivery.RetryPollerBatchSize,
		"worker_enabled", cfg.Delivery.WorkerEnabled,
	)

	handler := newHandler(sweeper, typedLogger)

	// Local mode: run a single sweep directly instead of starting the Lambda
	// runtime.
	if cfg.Environment == "local" {
		if _, err := handler(ctx); err != nil {
			logger.Error("retry sweep failed", "error", err.Error())
			os.Exit(1)
		}
		return
	}

	lambda.Start(handler)
}

// newHandler creates the Lambda handler function that runs one retry sweep
// per invocation.
func newHandler(sweeper *delivery.Sweeper, logger types.Logger) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		published, err := sweeper.Sweep(ctx)
		if err != nil {
			logger.Error("retry sweep failed",
				"error", err.Error(),
				"published_before_error", published,
			)
			return "", fmt.Errorf("retry sweep failed: %w", err)
		}

		result := fmt.Sprintf("sweep complete: %d tasks republished", published)
		logger.Info(result, "published", published)
		return result, nil
	}
}

// loadAWSConfig loads the AWS SDK configuration, honoring the endpoint
// override used for LocalStack in development environments.
func loadAWSConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.EndpointURL != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.EndpointURL))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

// newLogger creates a JSON slog logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
