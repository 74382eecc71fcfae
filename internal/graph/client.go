// Package graph is the HTTP client for the graph editor host. It covers the
// host's queue/history/stats surface plus the node catalog, which is large
// and slow to produce, so it is cached with a TTL.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/comfy-pilot/bridge/internal/logging"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Options configures the client.
type Options struct {
	// BaseURL is the graph host root, e.g. http://127.0.0.1:8188.
	BaseURL string
	// CatalogTTL controls node catalog cache lifetime.
	CatalogTTL time.Duration
	// Timeout applies to ordinary requests. The catalog call uses a longer
	// deadline because the payload can run to tens of megabytes.
	Timeout time.Duration
}

func (o *Options) withDefaults() {
	if o.BaseURL == "" {
		o.BaseURL = "http://127.0.0.1:8188"
	}
	if o.CatalogTTL <= 0 {
		o.CatalogTTL = 5 * time.Minute
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
}

// Client talks to the graph host.
type Client struct {
	resty *resty.Client
	opts  Options
	log   *logging.Logger

	mu        sync.Mutex
	catalog   map[string]json.RawMessage
	catalogAt time.Time
}

// NewClient builds a client with retrying transport.
func NewClient(opts Options, log *logging.Logger) *Client {
	opts.withDefaults()
	if log == nil {
		log = logging.NewNop()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 250 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = nil

	restyClient := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", "comfy-pilot-bridge/1.0")
	restyClient.SetTransport(retryClient.HTTPClient.Transport)

	return &Client{
		resty: restyClient,
		opts:  opts,
		log:   log,
	}
}

// apiError decodes the host's {"error": ...} convention when present.
func apiError(resp *resty.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Error != "" {
		return fmt.Errorf("graph host: %s (status %d)", body.Error, resp.StatusCode())
	}
	return fmt.Errorf("graph host: status %d", resp.StatusCode())
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	resp, err := c.resty.R().SetContext(ctx).Get(path)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	if resp.IsError() {
		return apiError(resp)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	req := c.resty.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	resp, err := req.Post(path)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	if resp.IsError() {
		return apiError(resp)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return nil
}

// NodeCatalog returns the host's node type catalog, cached for the TTL.
func (c *Client) NodeCatalog(ctx context.Context) (map[string]json.RawMessage, error) {
	c.mu.Lock()
	if c.catalog != nil && time.Since(c.catalogAt) < c.opts.CatalogTTL {
		catalog := c.catalog
		c.mu.Unlock()
		return catalog, nil
	}
	c.mu.Unlock()

	// The catalog endpoint is slow; give it a generous deadline.
	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var catalog map[string]json.RawMessage
	if err := c.getJSON(reqCtx, "/object_info", &catalog); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.catalog = catalog
	c.catalogAt = time.Now()
	c.mu.Unlock()

	c.log.Debug("node catalog refreshed", zap.Int("types", len(catalog)))
	return catalog, nil
}

// InvalidateCatalog drops the cached catalog.
func (c *Client) InvalidateCatalog() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.catalog = nil
}

// Queue returns the host's current queue state.
func (c *Client) Queue(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.getJSON(ctx, "/queue", &out)
	return out, err
}

// SystemStats returns the host's system statistics.
func (c *Client) SystemStats(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.getJSON(ctx, "/system_stats", &out)
	return out, err
}

// History returns prompt history, optionally for one prompt id.
func (c *Client) History(ctx context.Context, promptID string) (json.RawMessage, error) {
	path := "/history"
	if promptID != "" {
		path += "/" + promptID
	}
	var out json.RawMessage
	err := c.getJSON(ctx, path, &out)
	return out, err
}

// ClearHistory wipes the host's prompt history.
func (c *Client) ClearHistory(ctx context.Context) error {
	return c.postJSON(ctx, "/history", map[string]bool{"clear": true}, nil)
}

// Interrupt stops the current generation.
func (c *Client) Interrupt(ctx context.Context) error {
	return c.postJSON(ctx, "/interrupt", nil, nil)
}

// QueuePrompt submits a prompt for execution and returns the host-assigned
// prompt id.
func (c *Client) QueuePrompt(ctx context.Context, prompt json.RawMessage, clientID string) (string, error) {
	body := map[string]interface{}{
		"prompt": prompt,
	}
	if clientID != "" {
		body["client_id"] = clientID
	}

	var out struct {
		PromptID string `json:"prompt_id"`
	}
	if err := c.postJSON(ctx, "/prompt", body, &out); err != nil {
		return "", err
	}
	return out.PromptID, nil
}

// ViewImage fetches a generated image by filename. Returns the raw bytes and
// the media type reported by the host.
func (c *Client) ViewImage(ctx context.Context, filename, subfolder, imageType string) ([]byte, string, error) {
	if imageType == "" {
		imageType = "output"
	}

	req := c.resty.R().
		SetContext(ctx).
		SetQueryParam("filename", filename).
		SetQueryParam("type", imageType)
	if subfolder != "" {
		req.SetQueryParam("subfolder", subfolder)
	}

	resp, err := req.Get("/view")
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}
	if resp.IsError() {
		return nil, "", fmt.Errorf("fetch image: status %d", resp.StatusCode())
	}

	mediaType := resp.Header().Get("Content-Type")
	switch {
	case strings.Contains(mediaType, "jpeg"), strings.Contains(mediaType, "jpg"):
		mediaType = "image/jpeg"
	case strings.Contains(mediaType, "webp"):
		mediaType = "image/webp"
	default:
		mediaType = "image/png"
	}
	return resp.Body(), mediaType, nil
}
