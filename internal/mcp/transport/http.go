package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// HTTPConfig configures a Streamable-HTTP MCP server endpoint.
type HTTPConfig struct {
	URL     string
	Headers map[string]string
}

// HTTPTransport talks JSON-RPC over MCP Streamable HTTP: every Send is
// one POST, and the server may answer either with plain JSON or with a
// short-lived SSE stream carrying the response.
type HTTPTransport struct {
	config  HTTPConfig
	client  *http.Client
	baseURL string

	mu            sync.Mutex
	alive         bool
	notifyHandler NotificationHandler
	sessionID     string
}

// NewHTTPTransport creates an HTTP transport; Start validates the URL.
func NewHTTPTransport(config HTTPConfig) *HTTPTransport {
	return &HTTPTransport{
		config: config,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// Start resolves env expansion in the endpoint config. There is no
// persistent connection to establish; liveness just means "configured".
func (t *HTTPTransport) Start(ctx context.Context) error {
	t.baseURL = ExpandEnv(t.config.URL)
	t.config.Headers = ExpandEnvMap(t.config.Headers)
	if t.baseURL == "" {
		return fmt.Errorf("URL is required for HTTP transport")
	}

	t.mu.Lock()
	t.alive = true
	t.mu.Unlock()
	return nil
}

// newJSONRequest builds one POST with the configured headers and, when
// the server has assigned one, the MCP session id.
func (t *HTTPTransport) newJSONRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range t.config.Headers {
		req.Header.Set(k, v)
	}
	t.mu.Lock()
	if t.sessionID != "" {
		req.Header.Set("Mcp-Session-Id", t.sessionID)
	}
	t.mu.Unlock()
	return req, nil
}

// doRequest executes buildReq with retry on 429, honoring Retry-After
// when the server sends one and doubling the backoff otherwise.
func (t *HTTPTransport) doRequest(ctx context.Context, buildReq func() (*http.Request, error)) (*http.Response, error) {
	const maxRetries = 5
	backoff := 2 * time.Second

	for attempt := range maxRetries {
		req, err := buildReq()
		if err != nil {
			return nil, err
		}

		resp, err := t.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("HTTP request failed: %w", err)
		}

		if resp.StatusCode != http.StatusTooManyRequests || attempt == maxRetries-1 {
			// Capture session ID from MCP Streamable HTTP
			if sid := resp.Header.Get("Mcp-Session-Id"); sid != "" {
				t.mu.Lock()
				t.sessionID = sid
				t.mu.Unlock()
			}
			return resp, nil
		}

		wait := backoff
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				wait = time.Duration(secs) * time.Second
			}
		}

		resp.Body.Close()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		backoff *= 2
	}

	return nil, fmt.Errorf("exhausted retries")
}

// Send posts a request and decodes the response, whichever shape the
// server chose (JSON body or SSE event stream).
func (t *HTTPTransport) Send(ctx context.Context, req *JSONRPCRequest) (*JSONRPCResponse, error) {
	if !t.IsAlive() {
		return nil, fmt.Errorf("transport is not connected")
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := t.doRequest(ctx, func() (*http.Request, error) {
		return t.newJSONRequest(ctx, data)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(body))
	}

	ct := resp.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "text/event-stream") {
		return t.parseSSEResponse(resp.Body, req.ID)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var jsonResp JSONRPCResponse
	if err := json.Unmarshal(body, &jsonResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &jsonResp, nil
}

// parseSSEResponse drains one SSE stream, dispatching interleaved server
// notifications, until the event matching requestID arrives.
func (t *HTTPTransport) parseSSEResponse(r io.Reader, requestID uint64) (*JSONRPCResponse, error) {
	scanner := bufio.NewScanner(r)
	var data string

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			// A blank line terminates one SSE event.
			if data != "" {
				var resp JSONRPCResponse
				if err := json.Unmarshal([]byte(data), &resp); err == nil {
					if resp.ID == requestID {
						return &resp, nil
					}
				}
				t.mu.Lock()
				handler := t.notifyHandler
				t.mu.Unlock()
				if handler != nil {
					ParseAndDispatchNotification([]byte(data), handler)
				}
			}
			data = ""
			continue
		}

		if after, found := strings.CutPrefix(line, "data:"); found {
			data = strings.TrimSpace(after)
		}
	}

	if data != "" {
		var resp JSONRPCResponse
		if err := json.Unmarshal([]byte(data), &resp); err == nil {
			return &resp, nil
		}
	}

	return nil, fmt.Errorf("SSE stream ended without response for request %d", requestID)
}

// SendNotification posts a fire-and-forget notification.
func (t *HTTPTransport) SendNotification(ctx context.Context, notif *JSONRPCNotification) error {
	if !t.IsAlive() {
		return fmt.Errorf("transport is not connected")
	}

	data, err := json.Marshal(notif)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	resp, err := t.doRequest(ctx, func() (*http.Request, error) {
		return t.newJSONRequest(ctx, data)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(body))
	}
	io.Copy(io.Discard, resp.Body)

	return nil
}

// Close marks the transport dead; there is no connection to tear down.
func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.alive = false
	return nil
}

// IsAlive reports whether Start succeeded and Close has not been called.
func (t *HTTPTransport) IsAlive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.alive
}

// SetNotificationHandler stores a handler for notifications received in SSE streams.
func (t *HTTPTransport) SetNotificationHandler(handler NotificationHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notifyHandler = handler
}

