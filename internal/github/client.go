// Package github talks to the GitHub REST API: the dependency-graph SBOM
// export and the latest-release lookup.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/StinkyLord/gh-sbom-export/internal/logger"
	"github.com/StinkyLord/gh-sbom-export/internal/model"
)

const (
	apiVersion      = "2022-11-28"
	mediaType       = "application/vnd.github+json"
	maxResponseSize = 64 << 20
)

// ClientConfig configures the API client.
type ClientConfig struct {
	// BaseURL is the API root (default: https://api.github.com).
	BaseURL string

	// Token is sent as a bearer token. Public repositories work without.
	Token string

	// Timeout for individual requests (default: 30s).
	Timeout time.Duration

	// RateLimit requests per second (default: 5).
	RateLimit float64

	// RateBurst maximum burst size (default: 2).
	RateBurst int

	// UserAgent string (default: "gh-sbom-export").
	UserAgent string

	// Transport allows injecting a custom HTTP transport (for tests/stubs).
	Transport http.RoundTripper
}

// DefaultClientConfig returns a client config with sensible defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:   "https://api.github.com",
		Timeout:   30 * time.Second,
		RateLimit: 5,
		RateBurst: 2,
		UserAgent: "gh-sbom-export",
	}
}

// Client is a rate-limited GitHub API client. It is safe for concurrent use.
type Client struct {
	config      *ClientConfig
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// NewClient creates a client. Zero fields of config take their defaults.
func NewClient(config *ClientConfig) (*Client, error) {
	defaults := DefaultClientConfig()
	if config == nil {
		config = defaults
	}
	cfg := *config
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaults.RateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaults.RateBurst
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}
	return &Client{
		config: &cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
	}, nil
}

type sbomResponse struct {
	SBOM *struct {
		SPDXVersion string            `json:"spdxVersion"`
		Packages    []json.RawMessage `json:"packages"`
	} `json:"sbom"`
}

// FetchSBOM downloads the dependency-graph SBOM of repo and returns its
// packages in document order. A response without packages yields zero
// records. A package entry that does not decode is returned as an empty
// record so the caller can count it as malformed.
func (c *Client) FetchSBOM(ctx context.Context, repo model.Repository) ([]model.SourceRecord, error) {
	var payload sbomResponse
	if err := c.getJSON(ctx, repoPath(repo, "dependency-graph", "sbom"), &payload); err != nil {
		return nil, fmt.Errorf("fetching SBOM of %s: %w", repo.Slug(), err)
	}

	log := logger.Logger()
	if payload.SBOM == nil {
		log.Warnf("%s: SBOM response has no sbom object", repo.Slug())
		return nil, nil
	}

	records := make([]model.SourceRecord, 0, len(payload.SBOM.Packages))
	for i, raw := range payload.SBOM.Packages {
		var rec model.SourceRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			log.Warnf("%s: package %d does not decode: %v", repo.Slug(), i, err)
			rec = model.SourceRecord{}
		}
		records = append(records, rec)
	}
	log.Debugf("%s: fetched %d packages (%s)", repo.Slug(), len(records), payload.SBOM.SPDXVersion)
	return records, nil
}

// LatestRelease returns the tag of the latest published release of repo,
// or nil when the repository has none.
func (c *Client) LatestRelease(ctx context.Context, repo model.Repository) (*string, error) {
	var payload struct {
		TagName string `json:"tag_name"`
	}
	err := c.getJSON(ctx, repoPath(repo, "releases", "latest"), &payload)
	switch {
	case errors.Is(err, ErrNotFound):
		// No release yet.
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("fetching latest release of %s: %w", repo.Slug(), err)
	case strings.TrimSpace(payload.TagName) == "":
		return nil, nil
	}
	tag := payload.TagName
	return &tag, nil
}

func repoPath(repo model.Repository, parts ...string) string {
	segs := []string{"repos", url.PathEscape(repo.Owner), url.PathEscape(repo.Name)}
	return "/" + strings.Join(append(segs, parts...), "/")
}

// getJSON performs a rate-limited GET and decodes a 2xx body into target.
// Non-2xx responses and transport failures come back as *APIError.
func (c *Client) getJSON(ctx context.Context, path string, target any) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	fullURL := strings.TrimSuffix(c.config.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", mediaType)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", c.config.UserAgent)
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &APIError{Code: CodeEndpointUnreachable, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &APIError{Code: CodeEndpointUnreachable, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var ghErr struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &ghErr)
		return errorForStatus(resp.StatusCode, ghErr.Message)
	}

	if err := json.Unmarshal(body, target); err != nil {
		return &APIError{Code: CodeBadResponse, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode body: %w", err)}
	}
	return nil
}
