// Package ses implements a Transport that sends raw MIME messages via AWS SES v2.
package ses

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/sethvargo/go-retry"
	"github.com/wneessen/go-mail"

	"github.com/shineum/mailkit/internal/transport"
)

// maxRetries is the maximum number of retry attempts for transient failures.
const maxRetries = 3

// baseRetryDelay is the initial delay for exponential backoff.
const baseRetryDelay = 1 * time.Second

// Config holds the configuration for creating an SES Transport.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// ConfigurationSet is attached to every send when set.
	ConfigurationSet string
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
// Used for testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Transport sends messages via the AWS SES v2 API.
type Transport struct {
	client           SendEmailAPI
	configurationSet string
	baseDelay        time.Duration
	logger           *slog.Logger
}

// New creates a new SES Transport with the given configuration.
// Static credentials are used when both keys are set; otherwise the
// default AWS credential chain applies.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Transport, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	t := NewWithClient(sesv2.NewFromConfig(awsCfg), logger)
	t.configurationSet = cfg.ConfigurationSet
	return t, nil
}

// NewWithClient creates a Transport with a custom client, used for testing.
func NewWithClient(client SendEmailAPI, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		client:    client,
		baseDelay: baseRetryDelay,
		logger:    logger,
	}
}

// Send delivers msg as a raw MIME message. The envelope recipients,
// including Bcc, are passed as the destination.
func (s *Transport) Send(ctx context.Context, msg *mail.Msg) ([]string, error) {
	from, rcpts, err := transport.Envelope(msg)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: rcpts,
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{
				Data: buf.Bytes(),
			},
		},
	}
	if s.configurationSet != "" {
		input.ConfigurationSetName = aws.String(s.configurationSet)
	}

	attempts := 0
	b := retry.WithMaxRetries(maxRetries, retry.NewExponential(s.baseDelay))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		attempts++
		out, err := s.client.SendEmail(ctx, input)
		if err != nil {
			s.logger.Warn("SES API error",
				"attempt", attempts,
				"error", err,
			)
			return retry.RetryableError(err)
		}
		s.logger.Debug("SES accepted message", "message_id", aws.ToString(out.MessageId))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("SES API request failed after %d attempts: %w", attempts, err)
	}
	return nil, nil
}

// Name returns the transport name.
func (s *Transport) Name() string {
	return "ses"
}
