package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bnema/steam-accounts-cli/internal/application"
	"github.com/bnema/steam-accounts-cli/internal/domain"
)

const (
	maxResponseBytes = 1 << 20
	defaultTimeout   = 2 * time.Minute
)

// StatusError is a control-plane error without a matching domain error.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("control server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("control server returned status %d: %s", e.StatusCode, e.Message)
}

// Client talks to a running control server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient accepts either host:port or a full http URL.
func NewClient(addr string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if addr == "" {
		addr = DefaultListenAddr
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &Client{baseURL: strings.TrimRight(addr, "/"), http: httpClient}
}

func (c *Client) Status(ctx context.Context) (application.Status, error) {
	var status application.Status
	err := c.do(ctx, http.MethodGet, "/status", nil, &status)
	return status, err
}

func (c *Client) AcceptAllPending(ctx context.Context) (application.AcceptResult, error) {
	var resp acceptResponse
	if err := c.do(ctx, http.MethodPost, "/friends/accept", nil, &resp); err != nil {
		return application.AcceptResult{}, err
	}
	return fromAcceptResponse(resp), nil
}

func (c *Client) IsFriend(ctx context.Context, peer domain.PeerID) (bool, error) {
	var resp friendResponse
	if err := c.do(ctx, http.MethodGet, "/friends/"+url.PathEscape(string(peer)), nil, &resp); err != nil {
		return false, err
	}
	return resp.Friend, nil
}

func (c *Client) SendMessage(ctx context.Context, peer domain.PeerID, text string) error {
	return c.do(ctx, http.MethodPost, "/messages", messageRequest{Peer: peer, Text: text}, nil)
}

func (c *Client) do(ctx context.Context, method string, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	limited := io.LimitReader(resp.Body, maxResponseBytes)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var errResp errorResponse
		_ = json.NewDecoder(limited).Decode(&errResp)
		if sentinel := sentinelForCode(errResp.Code); sentinel != nil {
			return sentinel
		}
		return &StatusError{StatusCode: resp.StatusCode, Code: errResp.Code, Message: errResp.Error}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(limited).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
