package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/2beens/cutroom-admin/internal/telemetry/metrics"
)

// Client issues requests against the admin api with the current bearer
// token attached. It is handed out by Manager.AuthorizedClient and cannot be
// built elsewhere, so the reaction to a rejected token is always in place.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// NewRequest resolves path against the base url and JSON-encodes payload, if any.
func (c *Client) NewRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	return newJSONRequest(ctx, c.baseURL.JoinPath(path).String(), method, payload)
}

// Do sends req as is. Like http.Client.Do, a non-2xx status is not an error.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

// GetJSON sends a GET and decodes a 2xx body into out (when out is not nil).
// A non-2xx response comes back as *StatusError.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	req, err := c.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}
	return c.doJSON(req, out)
}

// PostJSON sends payload as JSON and decodes a 2xx body into out (when out is not nil).
func (c *Client) PostJSON(ctx context.Context, path string, payload, out any) error {
	req, err := c.NewRequest(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil
	}
	if err := decodeBody(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

func newStatusError(resp *http.Response) *StatusError {
	statusErr := &StatusError{StatusCode: resp.StatusCode}
	var body struct {
		Message string `json:"message"`
	}
	if err := decodeBody(resp.Body, &body); err == nil {
		statusErr.Message = body.Message
	}
	return statusErr
}

// authTransport attaches the persisted token to every request and tears the
// session down when the backend rejects it.
type authTransport struct {
	manager *Manager
	next    http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	// read at request time, a token rotated by someone else is still honored
	token, err := t.manager.store.Load(ctx)
	if err != nil {
		closeRequestBody(req)
		return nil, fmt.Errorf("load persisted token: %w", err)
	}
	if token == "" {
		closeRequestBody(req)
		t.manager.expire(ctx, "", ExpiredReasonTokenMissing)
		return nil, ErrNotAuthenticated
	}

	// a RoundTripper must not modify the request it was given
	authReq := req.Clone(ctx)
	authReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := t.next.RoundTrip(authReq)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		t.manager.expire(ctx, token, ExpiredReasonUnauthorized)
	case resp.StatusCode == http.StatusForbidden && t.manager.expireOnForbidden:
		t.manager.expire(ctx, token, ExpiredReasonForbidden)
	}

	return resp, nil
}

func closeRequestBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}

type instrumentedTransport struct {
	metrics *metrics.Manager
	next    http.RoundTripper
}

func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	if t.metrics == nil {
		return next.RoundTrip(req)
	}

	begin := time.Now()
	resp, err := next.RoundTrip(req)

	status := "error"
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	t.metrics.CounterOutgoingRequests.WithLabelValues(req.Method, status).Inc()
	t.metrics.HistogramOutgoingRequestDuration.WithLabelValues(req.Method, status).Observe(time.Since(begin).Seconds())

	return resp, err
}
