package slogx

import (
	"net/http"
	"time"

	"github.com/campuskit/portal/pkg/idx"
)

// Transport wraps an http.RoundTripper and logs each outbound request with a
// generated request ID. Request bodies are never logged; login and
// verification payloads carry secrets.
type Transport struct {
	Base http.RoundTripper
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	reqID := idx.New().String()
	req.Header.Set("X-Request-ID", reqID)

	logger := FromContext(req.Context()).With(
		"req_id", reqID,
		"method", req.Method,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := base.RoundTrip(req)
	duration := time.Since(start).Milliseconds()

	if err != nil {
		logger.Warn("api_request_failed", "duration_ms", duration, "err", err)
		return nil, err
	}

	logger.Info("api_request",
		"status", resp.StatusCode,
		"duration_ms", duration,
	)
	return resp, nil
}
