// Package main is the entrypoint for the Delivery Worker Lambda function.
//
// The Delivery Worker consumes delivery task messages from the delivery SQS
// queue, loads the referenced delivery record and alert, and sends the alert
// over the record's channel. It implements the SQS Lambda handler pattern
// where each invocation receives a batch of SQS messages.
//
// Cold Start (main):
//  1. Initialize structured logger.
//  2. Load engine configuration and AWS SDK configuration.
//  3. Open the database pool and construct repositories.
//  4. Initialize the SES email sender (or a stub in local mode).
//  5. Initialize the dead-letter publisher and CloudWatch metrics.
//  6. Construct the Worker and register the Lambda handler.
//
// Lambda SQS integration uses partial batch responses: messages that fail
// processing are returned in batchItemFailures so SQS retries only those.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"stormwatch/internal/config"
	"stormwatch/internal/db"
	"stormwatch/internal/delivery"
	"stormwatch/internal/external"
	"stormwatch/internal/queue"
	"stormwatch/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// slog.Logger satisfies Info, Error, and Warn directly but With returns
// *slog.Logger, not types.Logger, so an adapter is necessary.
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

// Handler holds the dependencies for the delivery worker Lambda handler.
type Handler struct {
	worker *delivery.Worker
	logger types.Logger
}

// Handle processes an SQS event containing one or more delivery task messages.
// Each message is processed independently; failures are reported via partial
// batch responses so SQS redelivers only the failed messages.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.Error("failed to process SQS message",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	var msg types.DeliveryTaskMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		h.logger.Error("failed to unmarshal delivery task message",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		// Permanent parse failure, do not retry (return nil to ACK).
		return nil
	}

	return h.worker.ProcessTask(ctx, msg)
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	typedLogger := &slogAdapter{logger: logger}

	logger.Info("delivery worker initializing (cold start)",
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
	alertRepo := db.NewAlertRepository(pool)

	sqsClient := sqs.NewFromConfig(awsCfg)
	dlq := queue.NewDLQPublisher(sqsClient, cfg.AWS, typedLogger)

	var senders []types.ChannelSender
	if cfg.Environment == "local" {
		logger.Warn("local environment, using stub email sender")
		senders = append(senders, &external.StubEmailSender{})
	} else {
		senders = append(senders, external.NewSESEmailSender(awsCfg, external.SESEmailSenderConfig{
			FromAddress:   cfg.Email.FromAddress,
			FromName:      cfg.Email.FromName,
			ConfigSetName: cfg.Email.ConfigSetName,
			Logger:        typedLogger,
		}))
	}

	var metrics delivery.Metrics = delivery.NoopMetrics{}
	if cfg.Environment != "local" {
		metrics = delivery.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), typedLogger)
	}

	worker := delivery.NewWorker(
		deliveryRepo,
		alertRepo,
		dlq,
		senders,
		delivery.PolicyFromConfig(cfg.Delivery),
		metrics,
		types.RealClock{},
		typedLogger,
		cfg.Delivery.WorkerEnabled,
	)

	handler := &Handler{worker: worker, logger: typedLogger}

	logger.Info("delivery worker initialized",
		"dlq_url", cfg.AWS.DeliveryDLQ,
		"worker_enabled", cfg.Delivery.WorkerEnabled,
		"max_attempts", cfg.Delivery.MaxAttempts,
	)

	// Local mode: read a JSON SQS event from stdin instead of starting the
	// Lambda runtime. This enables local integration testing without the
	// AWS Lambda RIE.
	if cfg.Environment == "local" {
		runLocal(handler, logger)
		return
	}

	lambda.Start(handler.Handle)
}

// runLocal reads an SQS event from stdin and runs the handler once.
// Usage: echo '{"Records":[{"messageId":"1","body":"{...}"}]}' | go run cmd/delivery-worker/main.go
func runLocal(handler *Handler, logger *slog.Logger) {
	logger.Info("local mode: reading SQS event from stdin")

	payload, err := io.ReadAll(os.Stdin)
	if err != nil {
		logger.Error("failed to read stdin", "error", err.Error())
		os.Exit(1)
	}
	if len(payload) == 0 {
		logger.Error("no input received on stdin")
		os.Exit(1)
	}

	var sqsEvent events.SQSEvent
	if err := json.Unmarshal(payload, &sqsEvent); err != nil {
		logger.Error("failed to parse stdin as SQS event", "error", err.Error())
		os.Exit(1)
	}

	response, err := handler.Handle(context.Background(), sqsEvent)
	if err != nil {
		logger.Error("handler execution failed", "error", err.Error())
		os.Exit(1)
	}
	if len(response.BatchItemFailures) > 0 {
		respJSON, _ := json.MarshalIndent(response, "", "  ")
		fmt.Fprintln(os.Stderr, string(respJSON))
	}

	logger.Info("handler execution completed",
		"records_processed", len(sqsEvent.Records),
		"failures", len(response.BatchItemFailures),
	)
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
