// Package main is the entrypoint for the Evaluator Lambda function.
//
// The Evaluator runs on a schedule via an EventBridge rule. Each invocation
// performs one evaluation cycle: it loads the enabled alert criteria, fetches
// weather data for each, evaluates the condition rules against the anti-spam
// state, raises alerts for rising edges, and enqueues delivery tasks.
//
// The handler input supports targeted re-evaluation: when a Location is
// given, only criteria whose location filter matches it are evaluated.
//
// This file handles dependency wiring (Cold Start) and delegates all business
// logic to the internal/engine package (Processor.RunCycle).
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
	"stormwatch/internal/engine"
	"stormwatch/internal/external"
	"stormwatch/internal/prefs"
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

// evaluatorInput is the Lambda invocation payload. The scheduled EventBridge
// rule sends an empty object; operators can invoke with a Location for
// targeted re-evaluation after upstream data for one area changes.
type evaluatorInput struct {
	Location string `json:"location,omitempty"`
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	typedLogger := &slogAdapter{logger: logger}

	logger.Info("evaluator initializing (cold start)",
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

	criteriaRepo := db.NewCriteriaRepository(pool)
	stateRepo := db.NewCriteriaStateRepository(pool)
	alertRepo := db.NewAlertRepository(pool)
	deliveryRepo := db.NewDeliveryRepository(pool)
	prefRepo := db.NewPreferenceRepository(pool)
	userRepo := db.NewUserRepository(pool)

	clock := types.RealClock{}
	sqsClient := sqs.NewFromConfig(awsCfg)
	tasks := queue.NewTaskPublisher(sqsClient, cfg.AWS, typedLogger, clock)

	resolver := prefs.NewResolver(prefRepo, userRepo, typedLogger)
	enqueuer := delivery.NewEnqueuer(deliveryRepo, resolver, userRepo, tasks, clock, typedLogger)

	provider := external.NewWeatherClient(cfg.Weather, clock, typedLogger)

	var metrics engine.Metrics = engine.NoopMetrics{}
	if cfg.Environment != "local" {
		metrics = engine.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), typedLogger)
	}

	processor := engine.NewProcessor(
		criteriaRepo,
		stateRepo,
		alertRepo,
		enqueuer,
		provider,
		metrics,
		clock,
		typedLogger,
		cfg.Evaluator.Concurrency,
	)

	logger.Info("evaluator initialized",
		"weather_base_url", cfg.Weather.BaseURL,
		"concurrency", cfg.Evaluator.Concurrency,
	)

	handler := newHandler(processor, typedLogger)

	// Local mode: run a single cycle directly instead of starting the Lambda
	// runtime. Location can be passed as the first CLI argument.
	if cfg.Environment == "local" {
		input := evaluatorInput{}
		if len(os.Args) > 1 {
			input.Location = os.Args[1]
		}
		if _, err := handler(ctx, input); err != nil {
			logger.Error("evaluation cycle failed", "error", err.Error())
			os.Exit(1)
		}
		return
	}

	lambda.Start(handler)
}

// newHandler creates the Lambda handler function that runs one evaluation
// cycle per invocation.
func newHandler(processor *engine.Processor, logger types.Logger) func(ctx context.Context, input evaluatorInput) (string, error) {
	return func(ctx context.Context, input evaluatorInput) (string, error) {
		logger.Info("evaluator handler invoked", "location", input.Location)

		var err error
		if input.Location != "" {
			err = processor.RunCycleForLocation(ctx, input.Location)
		} else {
			err = processor.RunCycle(ctx)
		}
		if err != nil {
			logger.Error("evaluation cycle failed", "error", err.Error())
			return "", fmt.Errorf("evaluation cycle failed: %w", err)
		}

		return "evaluation cycle complete", nil
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
