package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/focuspact/focuspact/internal/config"
	"github.com/focuspact/focuspact/internal/metrics"
	"github.com/focuspact/focuspact/internal/storage"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const limitsTable = "app_limits"

// Client talks to a PostgREST-style hosted backend.
type Client struct {
	baseURL *url.URL
	apiKey  string
	http    *retryablehttp.Client
	now     func() time.Time
	logger  zerolog.Logger

	tokenMu     sync.RWMutex
	accessToken string
}

// NewClient creates a backend client from configuration
func NewClient(cfg config.BackendConfig, logger zerolog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend url: %q", cfg.URL)
	}

	timeout := 10 * time.Second
	if cfg.Timeout != "" {
		timeout, err = time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid backend timeout: %w", err)
		}
	}

	logger = logger.With().Str("component", "backend").Logger()

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.Retries
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.HTTPClient.Timeout = timeout
	retryClient.Logger = leveledLogger{logger}
	// Hand the final response back so status codes map onto the error taxonomy
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL:     base,
		apiKey:      cfg.APIKey,
		accessToken: cfg.AccessToken,
		http:        retryClient,
		now:         time.Now,
		logger:      logger,
	}, nil
}

// SetAccessToken replaces the session token used for requests.
// Requests already in flight keep the token they started with.
func (c *Client) SetAccessToken(token string) {
	c.tokenMu.Lock()
	c.accessToken = token
	c.tokenMu.Unlock()
	c.logger.Info().Msg("Backend session token replaced")
}

func (c *Client) token() string {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.accessToken
}

// checkSession rejects requests that would certainly fail authentication.
func (c *Client) checkSession(accessToken string) error {
	if accessToken == "" {
		return fmt.Errorf("no backend session: %w", storage.ErrAuthRequired)
	}

	// Only JWTs carry an expiry we can inspect; opaque tokens are left to the server
	if strings.Count(accessToken, ".") != 2 {
		return nil
	}

	token, _, err := jwt.NewParser().ParseUnverified(accessToken, jwt.MapClaims{})
	if err != nil {
		return fmt.Errorf("malformed session token: %w", storage.ErrAuthRequired)
	}

	exp, err := token.Claims.GetExpirationTime()
	if err != nil {
		return fmt.Errorf("malformed session token expiry: %w", storage.ErrAuthRequired)
	}
	if exp != nil && !c.now().Before(exp.Time) {
		return fmt.Errorf("session expired at %s: %w", exp.Time.Format(time.RFC3339), storage.ErrAuthRequired)
	}

	return nil
}

// do sends one request to the REST endpoint for table and returns the body.
func (c *Client) do(ctx context.Context, method, table string, query url.Values, body any, prefer string) ([]byte, error) {
	accessToken := c.token()
	if err := c.checkSession(accessToken); err != nil {
		return nil, err
	}

	endpoint := *c.baseURL
	endpoint.Path = endpoint.Path + "/rest/v1/" + table
	endpoint.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.BackendRequests.WithLabelValues(method, "error").Inc()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s %s: %w: %w", method, table, storage.ErrTransport, err)
	}
	defer resp.Body.Close()

	metrics.BackendRequests.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: failed to read response: %w: %w", method, table, storage.ErrTransport, err)
	}

	if resp.StatusCode >= 300 {
		return nil, statusError(method, table, resp.StatusCode, data)
	}

	c.logger.Debug().
		Str("method", method).
		Str("table", table).
		Int("status", resp.StatusCode).
		Msg("Backend request complete")

	return data, nil
}

// statusError maps a failed response onto the storage error taxonomy.
func statusError(method, table string, status int, body []byte) error {
	message := gjson.GetBytes(body, "message").String()
	if message == "" {
		message = gjson.GetBytes(body, "error_description").String()
	}
	if message == "" {
		message = http.StatusText(status)
	}
	code := gjson.GetBytes(body, "code").String()

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%s %s: %s: %w", method, table, message, storage.ErrAuthRequired)
	case code == "PGRST301" || code == "PGRST302":
		// JWT expired or missing, reported with a 4xx by PostgREST
		return fmt.Errorf("%s %s: %s: %w", method, table, message, storage.ErrAuthRequired)
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%s %s: status %d: %s: %w", method, table, status, message, storage.ErrTransport)
	default:
		if code != "" {
			return fmt.Errorf("%s %s: status %d (%s): %s", method, table, status, code, message)
		}
		return fmt.Errorf("%s %s: status %d: %s", method, table, status, message)
	}
}

// leveledLogger adapts zerolog to retryablehttp's LeveledLogger.
type leveledLogger struct {
	logger zerolog.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Trace().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}
