package immich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultHTTPTimeout    = 60 * time.Second
	defaultRetryAttempts  = 20
	defaultRetryBaseDelay = 10 * time.Second
	defaultRetryMaxDelay  = 2 * time.Minute
	maxErrorBody          = 4 << 10
)

// Config captures the runtime settings required to talk to Immich.
type Config struct {
	// BaseURL is the server root; a trailing /api is optional.
	BaseURL        string
	APIKey         string
	DeviceID       string
	Timeout        time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// Client wraps the Immich asset API.
type Client struct {
	cfg        Config
	apiBase    string
	httpClient *http.Client
	logger     *zap.Logger

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the retry count.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// WithLogger attaches a logger for retry diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a client for the server at cfg.BaseURL.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.BaseURL == "" {
		return nil, errors.New("immich: base url required")
	}
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("immich: invalid base url %q", cfg.BaseURL)
	}
	if cfg.APIKey == "" {
		return nil, errors.New("immich: api key required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	client := &Client{
		cfg:              cfg,
		apiBase:          apiBase(cfg.BaseURL),
		httpClient:       &http.Client{Timeout: timeout},
		logger:           zap.NewNop(),
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	if cfg.RetryAttempts > 0 {
		client.retryMaxAttempts = cfg.RetryAttempts
	}
	if cfg.RetryBaseDelay > 0 {
		client.retryBaseDelay = cfg.RetryBaseDelay
	}
	if cfg.RetryMaxDelay > 0 {
		client.retryMaxDelay = cfg.RetryMaxDelay
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

func apiBase(base string) string {
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/api") {
		return base
	}
	return base + "/api"
}

// UploadRequest describes one asset upload.
type UploadRequest struct {
	DeviceAssetID  string
	Filename       string
	FileCreatedAt  time.Time
	FileModifiedAt time.Time
	IsFavorite     bool
	// Data is rewound before every attempt.
	Data io.ReadSeeker
	// Checksum is the hex SHA-1 of Data, sent so the server can short-circuit
	// known assets.
	Checksum string
	// Sidecar is an optional XMP packet.
	Sidecar []byte
}

// UploadResult is the server's verdict on an upload.
type UploadResult struct {
	ID        string
	Duplicate bool
}

// Upload posts an asset.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	var result UploadResult
	if req.Data == nil {
		return result, errors.New("immich upload: data required")
	}
	if strings.TrimSpace(req.Filename) == "" {
		return result, errors.New("immich upload: filename required")
	}
	endpoint := c.apiBase + "/assets"

	err := c.withRetry(ctx, "immich upload", func() error {
		if _, err := req.Data.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("immich upload: rewind: %w", err)
		}
		pr, pw := io.Pipe()
		form := multipart.NewWriter(pw)
		written := make(chan struct{})
		go func() {
			defer close(written)
			pw.CloseWithError(c.writeUploadForm(form, req))
		}()
		// The writer must be done with req.Data before the next attempt rewinds it.
		defer func() {
			pr.Close()
			<-written
		}()

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
		if err != nil {
			return fmt.Errorf("immich upload: new request: %w", err)
		}
		httpReq.Header.Set("Content-Type", form.FormDataContentType())
		if req.Checksum != "" {
			httpReq.Header.Set("x-immich-checksum", req.Checksum)
		}

		var body struct {
			ID        string `json:"id"`
			Status    string `json:"status"`
			Duplicate bool   `json:"duplicate"`
		}
		if err := c.send(httpReq, "/assets", &body); err != nil {
			return err
		}
		if body.ID == "" {
			return errors.New("immich upload: response without asset id")
		}
		result = UploadResult{ID: body.ID, Duplicate: body.Duplicate || body.Status == "duplicate"}
		return nil
	})
	return result, err
}

func (c *Client) writeUploadForm(form *multipart.Writer, req UploadRequest) error {
	fields := []struct{ name, value string }{
		{"deviceAssetId", req.DeviceAssetID},
		{"deviceId", c.cfg.DeviceID},
		{"fileCreatedAt", req.FileCreatedAt.Format(time.RFC3339)},
		{"fileModifiedAt", req.FileModifiedAt.Format(time.RFC3339)},
		{"isFavorite", strconv.FormatBool(req.IsFavorite)},
	}
	for _, f := range fields {
		if err := form.WriteField(f.name, f.value); err != nil {
			return err
		}
	}
	part, err := form.CreateFormFile("assetData", req.Filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, req.Data); err != nil {
		return err
	}
	if len(req.Sidecar) > 0 {
		part, err := form.CreateFormFile("sidecarData", req.Filename+".xmp")
		if err != nil {
			return err
		}
		if _, err := part.Write(req.Sidecar); err != nil {
			return err
		}
	}
	return form.Close()
}

// AssetUpdate carries the metadata patched onto an uploaded asset. Nil fields
// are left unchanged.
type AssetUpdate struct {
	DateTimeOriginal string   `json:"dateTimeOriginal,omitempty"`
	Latitude         *float64 `json:"latitude,omitempty"`
	Longitude        *float64 `json:"longitude,omitempty"`
	Description      *string  `json:"description,omitempty"`
}

// UpdateAsset patches metadata on an existing asset.
func (c *Client) UpdateAsset(ctx context.Context, id string, update AssetUpdate) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("immich update: asset id required")
	}
	return c.doJSON(ctx, "immich update", http.MethodPut, "/assets/"+url.PathEscape(id), update, nil)
}

// Ping checks that the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	var body struct {
		Res string `json:"res"`
	}
	if err := c.doJSON(ctx, "immich ping", http.MethodGet, "/server/ping", nil, &body); err != nil {
		return err
	}
	if body.Res != "pong" {
		return fmt.Errorf("immich ping: unexpected response %q", body.Res)
	}
	return nil
}

// User is the account that owns the API key.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// CurrentUser returns the account the API key belongs to.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	var user User
	err := c.doJSON(ctx, "immich user", http.MethodGet, "/users/me", nil, &user)
	return user, err
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		payload = encoded
	}
	return c.withRetry(ctx, op, func() error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, body)
		if err != nil {
			return fmt.Errorf("%s: new request: %w", op, err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return c.send(req, path, out)
	})
}

func (c *Client) send(req *http.Request, path string, out any) error {
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("immich %s %s: %w", req.Method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return &StatusError{
			Method:     req.Method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       string(body),
			RetryAfter: retryAfter,
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("immich %s %s: decode response: %w", req.Method, path, err)
	}
	return nil
}

// DeviceAssetID builds the per-device asset key the Immich CLI uses: the file
// name without whitespace, followed by the size.
func DeviceAssetID(name string, size int64) string {
	return strings.Join(strings.Fields(name), "") + "-" + strconv.FormatInt(size, 10)
}
