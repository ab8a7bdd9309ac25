package athena

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/medterm/backend/pkg/logger"
)

const (
	defaultBaseURL       = "https://athena.ohdsi.org/api/v1"
	defaultRetries       = 3
	defaultBackoffFactor = 0.3
	defaultTimeout       = 10 * time.Second
	userAgent            = "MedTermDirectoryClient/1.0"
)

var defaultRetryStatuses = []int{
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

type Config struct {
	BaseURL       string
	APIKey        string
	Retries       int
	BackoffFactor float64
	RetryStatuses []int
	Timeout       time.Duration
}

func (cfg Config) withDefaults() Config {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Retries == 0 {
		cfg.Retries = defaultRetries
	}
	if cfg.BackoffFactor == 0 {
		cfg.BackoffFactor = defaultBackoffFactor
	}
	if len(cfg.RetryStatuses) == 0 {
		cfg.RetryStatuses = defaultRetryStatuses
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return cfg
}

// ConceptSearchRequest names the parameters of a concept search. Query is
// mandatory; zero-valued optional parameters are omitted from the request,
// not sent as empty.
type ConceptSearchRequest struct {
	Query           string
	PageSize        int
	Page            int
	StandardConcept string
	Domain          string
	Vocabulary      string
}

func (r ConceptSearchRequest) values() url.Values {
	params := url.Values{}
	params.Set("query", r.Query)
	if r.PageSize > 0 {
		params.Set("pageSize", strconv.Itoa(r.PageSize))
	}
	if r.Page > 0 {
		params.Set("page", strconv.Itoa(r.Page))
	}
	if r.StandardConcept != "" {
		params.Set("standardConcept", r.StandardConcept)
	}
	if r.Domain != "" {
		params.Set("domain", r.Domain)
	}
	if r.Vocabulary != "" {
		params.Set("vocabulary", r.Vocabulary)
	}
	return params
}

// Client queries the Athena OHDSI concept directory over one shared HTTP
// session. The session's transport retries idempotent requests with
// exponential backoff; callers see the final outcome only.
//
// A Client is intended to be owned by one composition root and reused across
// sequential calls; Close releases its idle connections.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()

	client := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: newRetryTransport(http.DefaultTransport, cfg.Retries, cfg.BackoffFactor, cfg.RetryStatuses),
		},
	}

	if cfg.APIKey != "" {
		logger.Info("Directory client initialized with API key", zap.String("base_url", cfg.BaseURL))
	} else {
		logger.Info("Directory client initialized for anonymous access", zap.String("base_url", cfg.BaseURL))
	}
	return client
}

// Close releases the session's pooled connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// GetMedicalConcepts searches the directory for concepts matching the query.
func (c *Client) GetMedicalConcepts(ctx context.Context, req ConceptSearchRequest) (*ConceptSearchResult, error) {
	return getMedicalConcepts(ctx, c.httpClient, c.cfg, req)
}

// GetConceptRelationships fetches the relationship graph of one concept.
func (c *Client) GetConceptRelationships(ctx context.Context, conceptID int64) (*ConceptRelationships, error) {
	return getConceptRelationships(ctx, c.httpClient, c.cfg, conceptID)
}

func getMedicalConcepts(ctx context.Context, hc *http.Client, cfg Config, req ConceptSearchRequest) (*ConceptSearchResult, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("query is required")
	}

	logger.Info("Fetching medical concepts", zap.String("query", req.Query))
	body, err := get(ctx, hc, cfg, "/concepts", req.values())
	if err != nil {
		return nil, err
	}

	var wire conceptSearchWire
	if err := json.Unmarshal(body, &wire); err != nil {
		logger.Error("Failed to decode concept search response", zap.Error(err))
		return nil, &ValidationError{Err: err}
	}
	if err := wire.validate(); err != nil {
		logger.Error("Concept search response failed validation", zap.Error(err))
		return nil, err
	}
	return wire.result(), nil
}

func getConceptRelationships(ctx context.Context, hc *http.Client, cfg Config, conceptID int64) (*ConceptRelationships, error) {
	logger.Info("Fetching concept relationships", zap.Int64("concept_id", conceptID))
	path := fmt.Sprintf("/concepts/%d/relationships", conceptID)
	body, err := get(ctx, hc, cfg, path, nil)
	if err != nil {
		return nil, err
	}

	var wire conceptRelationshipsWire
	if err := json.Unmarshal(body, &wire); err != nil {
		logger.Error("Failed to decode relationships response", zap.Error(err))
		return nil, &ValidationError{Err: err}
	}
	if err := wire.validate(); err != nil {
		logger.Error("Relationships response failed validation", zap.Error(err))
		return nil, err
	}
	return wire.result(), nil
}

func get(ctx context.Context, hc *http.Client, cfg Config, path string, params url.Values) ([]byte, error) {
	endpoint := cfg.BaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	resp, err := hc.Do(req)
	if err != nil {
		switch {
		case IsTimeout(err):
			logger.Error("Directory request timed out", zap.String("url", endpoint))
		case IsConnectionError(err):
			logger.Error("Directory connection error", zap.String("url", endpoint), zap.Error(err))
		}
		return nil, fmt.Errorf("directory request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusForbidden {
			// Full body helps diagnose credential misconfiguration.
			logger.Error("Directory returned 403",
				zap.String("url", endpoint),
				zap.String("body", string(body)),
			)
		}
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}
	return body, nil
}
