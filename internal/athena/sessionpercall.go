package athena

import (
	"context"
	"net/http"
)

// SessionPerCallClient has the same request and validation semantics as
// Client but opens a fresh, short-lived session for every call instead of
// reusing a shared one. That makes it safe for arbitrary concurrent use:
// each in-flight request owns its sockets, cancellation of the caller's
// context aborts the request, and teardown is deterministic per call.
type SessionPerCallClient struct {
	cfg Config
}

func NewSessionPerCallClient(cfg Config) *SessionPerCallClient {
	return &SessionPerCallClient{cfg: cfg.withDefaults()}
}

func (c *SessionPerCallClient) session() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableKeepAlives = true
	return &http.Client{
		Timeout:   c.cfg.Timeout,
		Transport: newRetryTransport(transport, c.cfg.Retries, c.cfg.BackoffFactor, c.cfg.RetryStatuses),
	}
}

func (c *SessionPerCallClient) GetMedicalConcepts(ctx context.Context, req ConceptSearchRequest) (*ConceptSearchResult, error) {
	hc := c.session()
	defer hc.CloseIdleConnections()
	return getMedicalConcepts(ctx, hc, c.cfg, req)
}

func (c *SessionPerCallClient) GetConceptRelationships(ctx context.Context, conceptID int64) (*ConceptRelationships, error) {
	hc := c.session()
	defer hc.CloseIdleConnections()
	return getConceptRelationships(ctx, hc, c.cfg, conceptID)
}
