package athena

import (
	"io"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/medterm/backend/pkg/logger"
)

// retryTransport retries idempotent requests at the transport level with
// exponential backoff, mirroring the application-agnostic retry an HTTP
// session adapter would do. Application callers only ever see the final
// response or error.
type retryTransport struct {
	base          http.RoundTripper
	retries       int
	backoffFactor float64
	retryStatuses map[int]struct{}
}

func newRetryTransport(base http.RoundTripper, retries int, backoffFactor float64, statuses []int) *retryTransport {
	set := make(map[int]struct{}, len(statuses))
	for _, code := range statuses {
		set[code] = struct{}{}
	}
	return &retryTransport{
		base:          base,
		retries:       retries,
		backoffFactor: backoffFactor,
		retryStatuses: set,
	}
}

var idempotentMethods = map[string]struct{}{
	http.MethodHead:    {},
	http.MethodGet:     {},
	http.MethodOptions: {},
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if _, ok := idempotentMethods[req.Method]; !ok {
		return t.base.RoundTrip(req)
	}

	var lastErr error
	for attempt := 0; attempt <= t.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-req.Context().Done():
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, req.Context().Err()
			case <-time.After(t.backoff(attempt)):
			}
		}

		resp, err := t.base.RoundTrip(req)
		if err != nil {
			lastErr = err
			logger.Debug("Transport error, will retry",
				zap.String("url", req.URL.String()),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		if _, retryable := t.retryStatuses[resp.StatusCode]; retryable && attempt < t.retries {
			logger.Debug("Retryable status, will retry",
				zap.String("url", req.URL.String()),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
			)
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = nil
			continue
		}

		return resp, nil
	}
	return nil, lastErr
}

// backoff follows the urllib3 formula: factor * 2^(attempt-1) seconds.
func (t *retryTransport) backoff(attempt int) time.Duration {
	seconds := t.backoffFactor * math.Pow(2, float64(attempt-1))
	return time.Duration(seconds * float64(time.Second))
}
