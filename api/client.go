// Package api is the HTTP client for the news service. It talks to two
// logical services sharing one base configuration: the authentication
// service (login, register) and the content service (articles, comments,
// saved articles). Content-service requests pass through the Pipeline so the
// current credential is attached; authentication requests never are.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/robertmeta/news-cli/logging"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// Config is the shared base configuration of both services.
type Config struct {
	AuthURL    string
	ContentURL string
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the authentication and content services.
type Client struct {
	authURL    string
	contentURL string
	userAgent  string
	http       *http.Client
	pipeline   *Pipeline
	log        *slog.Logger
}

// New creates a Client. The pipeline decorates every content-service
// request; pass the same pipeline to the session store.
func New(cfg Config, pipeline *Pipeline) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if pipeline == nil {
		pipeline = NewPipeline()
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "news-cli"
	}

	return &Client{
		authURL:    strings.TrimRight(cfg.AuthURL, "/"),
		contentURL: strings.TrimRight(cfg.ContentURL, "/"),
		userAgent:  userAgent,
		http:       httpClient,
		pipeline:   pipeline,
		log:        log,
	}
}

// Pipeline returns the request pipeline used for content-service calls.
func (c *Client) Pipeline() *Pipeline {
	return c.pipeline
}

// service selects the base address and whether the pipeline applies.
type service int

const (
	authService service = iota
	contentService
)

// call describes one request.
type call struct {
	svc    service
	method string
	path   string
	query  url.Values
	body   any
	out    any
}

func (c *Client) do(ctx context.Context, cl call) error {
	base := c.contentURL
	if cl.svc == authService {
		base = c.authURL
	}
	target := base + cl.path
	if len(cl.query) > 0 {
		target += "?" + cl.query.Encode()
	}

	var body io.Reader
	if cl.body != nil {
		data, err := json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, target, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)

	var epoch uint64
	if cl.svc == contentService {
		epoch = c.pipeline.Decorate(req)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("request failed",
			"method", cl.method, "path", cl.path, "request_id", requestID, "error", err)
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	c.log.Debug("request",
		"method", cl.method,
		"path", cl.path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
		"request_id", requestID,
		"epoch", epoch,
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &Error{
			StatusCode: resp.StatusCode,
			Message:    parseErrorBody(data),
			RequestID:  requestID,
		}
	}

	if cl.out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("decode response: empty body from %s %s", cl.method, cl.path)
	}
	if err := json.Unmarshal(data, cl.out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
