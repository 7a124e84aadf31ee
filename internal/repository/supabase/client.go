// Package supabase talks to the hosted backend over its REST surfaces:
// GoTrue for auth, PostgREST for server functions, and the storage API for
// buckets. Profile rows are NOT read through here; those go straight to
// Postgres (see internal/repository/postgres).
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go-jobmarket-backend/pkg/apperror"

	"github.com/google/uuid"
)

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// do executes a JSON request. out may be nil when the response body does not
// matter. bearer may be empty for anonymous endpoints.
func (c *Client) do(ctx context.Context, method, path, bearer string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return apperror.Internal(err)
		}
		reader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperror.Internal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuthHeaders(req, bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return apperror.Timeout("request to backend timed out", err)
		}
		return apperror.Network("backend unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return errorFromResponse(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperror.Network("failed to parse backend response", err)
		}
	}
	return nil
}

// doRaw executes a request with a non-JSON body (file uploads).
func (c *Client) doRaw(ctx context.Context, method, path, bearer, contentType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return apperror.Internal(err)
	}
	req.Header.Set("Content-Type", contentType)
	c.setAuthHeaders(req, bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return apperror.Timeout("request to backend timed out", err)
		}
		return apperror.Network("backend unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return errorFromResponse(resp)
	}
	return nil
}

func (c *Client) setAuthHeaders(req *http.Request, bearer string) {
	req.Header.Set("apikey", c.apiKey)
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("X-Request-ID", uuid.NewString())
}

// errorFromResponse maps a GoTrue/PostgREST error payload onto the app
// taxonomy. GoTrue uses msg/error_description, PostgREST uses message.
func errorFromResponse(resp *http.Response) error {
	var payload struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&payload)

	msg := payload.Msg
	if msg == "" {
		msg = payload.Message
	}
	if msg == "" {
		msg = payload.ErrorDescription
	}
	if msg == "" {
		msg = resp.Status
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return apperror.Unauthorized(msg)
	case resp.StatusCode == http.StatusForbidden:
		return apperror.Forbidden(msg)
	case resp.StatusCode == http.StatusNotFound:
		return apperror.NotFound(msg)
	case resp.StatusCode == http.StatusConflict:
		return apperror.Conflict(msg)
	case resp.StatusCode < 500:
		return apperror.BadRequest(msg)
	default:
		return apperror.Network(msg, nil)
	}
}
