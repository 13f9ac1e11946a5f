package external

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	"stormwatch/internal/types"
)

// SESAPI defines the subset of the SES v2 client used by SESEmailSender.
// Extracted for testability so tests can provide a mock implementation.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESEmailSenderConfig holds the configuration for creating an SESEmailSender.
type SESEmailSenderConfig struct {
	// FromAddress is the verified sender identity.
	FromAddress string
	// FromName is the display name shown to recipients. Optional.
	FromName string
	// ConfigSetName is the SES configuration set name for tracking.
	// Optional; if empty, no configuration set is used.
	ConfigSetName string
	// Logger for SES operations.
	Logger types.Logger
}

// SESEmailSender delivers alerts over email using AWS SES v2.
// Authentication is handled via IAM roles (no API key required).
// The AWS SDK provides built-in retry logic, so the weather apiClient wrapper
// is not used here.
type SESEmailSender struct {
	api           SESAPI
	fromAddress   string
	fromName      string
	configSetName string
	logger        types.Logger
}

// NewSESEmailSender creates an SESEmailSender from an AWS config.
func NewSESEmailSender(awsCfg aws.Config, cfg SESEmailSenderConfig) *SESEmailSender {
	return &SESEmailSender{
		api:           sesv2.NewFromConfig(awsCfg),
		fromAddress:   cfg.FromAddress,
		fromName:      cfg.FromName,
		configSetName: cfg.ConfigSetName,
		logger:        cfg.Logger,
	}
}

// NewSESEmailSenderWithAPI creates an SESEmailSender with a pre-configured
// SESAPI. Useful for testing with a mock SES interface.
func NewSESEmailSenderWithAPI(api SESAPI, cfg SESEmailSenderConfig) *SESEmailSender {
	return &SESEmailSender{
		api:           api,
		fromAddress:   cfg.FromAddress,
		fromName:      cfg.FromName,
		configSetName: cfg.ConfigSetName,
		logger:        cfg.Logger,
	}
}

// Channel reports the delivery channel this sender serves.
func (s *SESEmailSender) Channel() types.Channel { return types.ChannelEmail }

// Send renders the alert as an email and transmits it via SES v2 SendEmail
// with simple content (Subject, Body.Text). Returns the SES message ID.
//
// Error mapping:
//   - MessageRejected → ErrCodeEmailBlocked
//   - TooManyRequestsException → ErrCodeUpstreamRateLimited
//   - SendingPausedException → ErrCodeUpstreamUnavailable
//   - Other → ErrCodeUpstreamEmailProvider
func (s *SESEmailSender) Send(ctx context.Context, alert *types.Alert, destination string) (string, error) {
	if destination == "" {
		return "", types.NewAppError(
			types.ErrCodeValidationMissingField,
			"email delivery requires a destination address",
			nil,
		)
	}

	fromAddr := s.fromAddress
	if s.fromName != "" {
		fromAddr = fmt.Sprintf("%s <%s>", s.fromName, s.fromAddress)
	}

	emailInput := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddr),
		Destination: &sestypes.Destination{
			ToAddresses: []string{destination},
		},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{
					Data:    aws.String(alertSubject(alert)),
					Charset: aws.String("UTF-8"),
				},
				Body: &sestypes.Body{
					Text: &sestypes.Content{
						Data:    aws.String(alertBody(alert)),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	if s.configSetName != "" {
		emailInput.ConfigurationSetName = aws.String(s.configSetName)
	}

	// Tag the message with the alert ID for correlation.
	if alert.ID != "" {
		emailInput.EmailTags = []sestypes.MessageTag{
			{
				Name:  aws.String("AlertID"),
				Value: aws.String(alert.ID),
			},
		}
	}

	result, err := s.api.SendEmail(ctx, emailInput)
	if err != nil {
		return "", mapSESError(err)
	}

	msgID := ""
	if result.MessageId != nil {
		msgID = *result.MessageId
	}

	return msgID, nil
}

// alertSubject builds the email subject line from the alert headline.
func alertSubject(alert *types.Alert) string {
	headline := strings.TrimSpace(alert.Headline)
	if headline == "" {
		headline = "Condition triggered"
	}
	return "Weather alert: " + headline
}

// alertBody renders the plaintext email body.
func alertBody(alert *types.Alert) string {
	var b strings.Builder

	if alert.Headline != "" {
		b.WriteString(alert.Headline)
		b.WriteString("\n\n")
	}
	if alert.Reason != "" {
		b.WriteString(alert.Reason)
		b.WriteString("\n")
	}
	if alert.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", alert.Location)
	}
	if alert.ConditionSource != "" {
		fmt.Fprintf(&b, "Source: %s\n", strings.ToLower(string(alert.ConditionSource)))
	}
	if alert.ConditionOnset != nil {
		fmt.Fprintf(&b, "Starts: %s\n", alert.ConditionOnset.UTC().Format("Mon, 02 Jan 2006 15:04 MST"))
	}
	if alert.ConditionExpires != nil {
		fmt.Fprintf(&b, "Ends: %s\n", alert.ConditionExpires.UTC().Format("Mon, 02 Jan 2006 15:04 MST"))
	}

	if b.Len() == 0 {
		b.WriteString("A weather condition you are monitoring has triggered.\n")
	}

	return b.String()
}

// mapSESError translates AWS SES errors into domain AppErrors.
func mapSESError(err error) error {
	var msgRejected *sestypes.MessageRejected
	if errors.As(err, &msgRejected) {
		return types.NewAppError(
			types.ErrCodeEmailBlocked,
			fmt.Sprintf("SES rejected message: %v", err),
			err,
		)
	}

	var tooManyReqs *sestypes.TooManyRequestsException
	if errors.As(err, &tooManyReqs) {
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("SES rate limit exceeded: %v", err),
			err,
		)
	}

	var sendingPaused *sestypes.SendingPausedException
	if errors.As(err, &sendingPaused) {
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("SES account sending paused: %v", err),
			err,
		)
	}

	// Server-side failures and throttling not surfaced as a modeled
	// exception. These must stay retryable.
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.HTTPStatusCode() == http.StatusTooManyRequests:
			return types.NewAppError(
				types.ErrCodeUpstreamRateLimited,
				fmt.Sprintf("SES throttled request: %v", err),
				err,
			)
		case respErr.HTTPStatusCode() >= http.StatusInternalServerError:
			return types.NewAppError(
				types.ErrCodeUpstreamUnavailable,
				fmt.Sprintf("SES server error: %v", err),
				err,
			)
		}
	}

	// No API error at all means the request never got a SES response:
	// timeout, connection reset, DNS failure. Also retryable.
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("SES transport error: %v", err),
			err,
		)
	}

	return types.NewAppError(
		types.ErrCodeUpstreamEmailProvider,
		fmt.Sprintf("SES error: %v", err),
		err,
	)
}

// Compile-time assertion that SESEmailSender satisfies ChannelSender.
var _ types.ChannelSender = (*SESEmailSender)(nil)
