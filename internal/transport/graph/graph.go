// Package graph implements a Transport that sends messages through the
// Microsoft Graph sendMail endpoint in MIME format, authenticating with
// OAuth2 client credentials.
package graph

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/wneessen/go-mail"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/shineum/mailkit/internal/transport"
)

// Config holds the configuration for creating a Graph Transport.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Sender       string
}

// maxRetries is the maximum number of retry attempts for transient failures.
const maxRetries = 3

// baseRetryDelay is the initial delay for exponential backoff.
const baseRetryDelay = 1 * time.Second

// Transport sends messages via the Microsoft Graph API.
type Transport struct {
	graphURL   string
	httpClient *http.Client
	oauth      *clientcredentials.Config
	baseDelay  time.Duration
	logger     *slog.Logger

	mu     sync.Mutex
	tokens oauth2.TokenSource
}

// New creates a new Graph Transport with the given configuration.
func New(cfg Config, logger *slog.Logger) *Transport {
	tokenURL := fmt.Sprintf(
		"https://login.microsoftonline.com/%s/oauth2/v2.0/token",
		cfg.TenantID,
	)
	graphURL := fmt.Sprintf("https://graph.microsoft.com/v1.0/users/%s/sendMail", cfg.Sender)
	return newWithOverrides(cfg, graphURL, tokenURL, &http.Client{Timeout: 30 * time.Second}, logger)
}

// newWithOverrides creates a Transport with custom URLs and HTTP client,
// used for testing.
func newWithOverrides(cfg Config, graphURL, tokenURL string, client *http.Client, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Transport{
		graphURL:   graphURL,
		httpClient: client,
		oauth: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
			Scopes:       []string{"https://graph.microsoft.com/.default"},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		baseDelay: baseRetryDelay,
		logger:    logger,
	}
	t.resetTokens()
	return t
}

// resetTokens discards the cached access token so the next request
// fetches a fresh one.
func (g *Transport) resetTokens() {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, g.httpClient)
	g.mu.Lock()
	g.tokens = g.oauth.TokenSource(ctx)
	g.mu.Unlock()
}

func (g *Transport) token() (*oauth2.Token, error) {
	g.mu.Lock()
	ts := g.tokens
	g.mu.Unlock()
	return ts.Token()
}

// Send delivers msg via the Microsoft Graph API.
// Graph derives recipients from the MIME headers, so Bcc recipients cannot
// be delivered and are reported as failed.
func (g *Transport) Send(ctx context.Context, msg *mail.Msg) ([]string, error) {
	var failed []string
	for _, a := range msg.GetBcc() {
		failed = append(failed, a.Address)
	}
	if len(failed) > 0 {
		g.logger.Warn("graph cannot deliver bcc recipients", "bcc", failed)
	}
	if len(msg.GetTo())+len(msg.GetCc()) == 0 {
		return failed, transport.ErrAllRecipientsRejected
	}

	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}
	body := []byte(base64.StdEncoding.EncodeToString(buf.Bytes()))

	tokenRefreshed := false
	attempts := 0
	b := retry.WithMaxRetries(maxRetries, retry.NewExponential(g.baseDelay))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempts++
		err := g.doSendRequest(ctx, body)
		if err == nil {
			return nil
		}

		var graphErr *sendError
		if !errors.As(err, &graphErr) {
			return err
		}

		switch {
		case graphErr.permanent:
			return graphErr
		case graphErr.statusCode == http.StatusUnauthorized && !tokenRefreshed:
			g.logger.Info("refreshing Graph API token after 401")
			g.resetTokens()
			tokenRefreshed = true
			return retry.RetryableError(graphErr)
		case graphErr.statusCode == http.StatusTooManyRequests:
			if delay := retryAfterDelay(graphErr.retryAfter); delay > 0 {
				g.logger.Info("rate limited by Graph API", "retry_after", delay)
				if err := sleepWithContext(ctx, delay); err != nil {
					return err
				}
			}
			return retry.RetryableError(graphErr)
		case graphErr.transient:
			g.logger.Info("transient Graph API error, retrying",
				"status", graphErr.statusCode,
				"attempt", attempts,
			)
			return retry.RetryableError(graphErr)
		default:
			return graphErr
		}
	})
	if err != nil {
		return nil, fmt.Errorf("Graph API request failed after %d attempts: %w", attempts, err)
	}
	return failed, nil
}

// Name returns the transport name.
func (g *Transport) Name() string {
	return "msgraph"
}

// doSendRequest performs a single HTTP request to the Graph API sendMail endpoint.
func (g *Transport) doSendRequest(ctx context.Context, body []byte) error {
	token, err := g.token()
	if err != nil {
		return fmt.Errorf("failed to get access token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.graphURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	token.SetAuthHeader(req)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &sendError{
			message:   fmt.Sprintf("HTTP request failed: %v", err),
			transient: true,
		}
	}
	defer resp.Body.Close()

	// HTTP 202 Accepted is success for sendMail
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		return nil
	}

	data, _ := io.ReadAll(resp.Body)

	var graphErrResp graphErrorResponse
	if jsonErr := json.Unmarshal(data, &graphErrResp); jsonErr == nil && graphErrResp.Error.Message != "" {
		return classifyError(resp.StatusCode, graphErrResp.Error.Message, resp.Header.Get("Retry-After"))
	}

	return classifyError(resp.StatusCode, string(data), resp.Header.Get("Retry-After"))
}

// graphErrorResponse represents an error response from the Graph API.
type graphErrorResponse struct {
	Error graphError `json:"error"`
}

// graphError represents the error detail in a Graph API error response.
type graphError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// sendError represents an error from the Graph API send operation with
// classification for retry logic.
type sendError struct {
	message    string
	statusCode int
	permanent  bool
	transient  bool
	retryAfter string
}

func (e *sendError) Error() string {
	return fmt.Sprintf("Graph API error (HTTP %d): %s", e.statusCode, e.message)
}

// classifyError categorizes an HTTP error response for retry decisions.
func classifyError(statusCode int, message, retryAfter string) *sendError {
	err := &sendError{
		message:    message,
		statusCode: statusCode,
		retryAfter: retryAfter,
	}

	switch {
	case statusCode == http.StatusBadRequest || statusCode == http.StatusForbidden:
		err.permanent = true
	case statusCode == http.StatusUnauthorized:
		err.transient = true
	case statusCode == http.StatusTooManyRequests:
		err.transient = true
	case statusCode >= 500:
		err.transient = true
	default:
		err.permanent = true
	}

	return err
}

// retryAfterDelay parses a Retry-After header given in seconds. Zero means
// the regular backoff applies.
func retryAfterDelay(retryAfter string) time.Duration {
	seconds, err := strconv.Atoi(retryAfter)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// sleepWithContext waits for the specified duration or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
