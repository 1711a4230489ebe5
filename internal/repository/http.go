package repository

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"context"

	pkgerrors "github.com/pkg/errors"

	"github.com/OrlandoBitencourt/nuntius/internal/domain"
)

// Config holds the connection settings for the engagement API.
type Config struct {
	// Endpoint is the base URL of the API, e.g. "https://api.example.com".
	Endpoint string

	// ProjectToken identifies the project; sent on every request path.
	ProjectToken string

	// Authorization is the public API key sent as a bearer token.
	Authorization string

	// Timeout for HTTP requests.
	Timeout time.Duration
}

// HTTPClient implements Client over plain JSON HTTP. It performs no
// retries; transient-failure handling belongs to the transport layer of
// the host app.
type HTTPClient struct {
	config     Config
	httpClient *http.Client
}

// NewHTTPClient creates an HTTP repository client.
func NewHTTPClient(config Config) *HTTPClient {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type contentBlocksResponse struct {
	Blocks []*domain.Candidate `json:"in_app_content_blocks"`
}

type inAppMessagesResponse struct {
	Messages []*domain.Candidate `json:"in_app_messages"`
}

type segmentsRequest struct {
	Cookie      string            `json:"cookie"`
	ExternalIDs map[string]string `json:"external_ids,omitempty"`
}

// FetchContentBlocks implements Client.
func (c *HTTPClient) FetchContentBlocks(ctx context.Context, placeholderIDs []string) ([]*domain.Candidate, error) {
	url := fmt.Sprintf("%s/webxp/projects/%s/bundle", c.config.Endpoint, c.config.ProjectToken)

	body := map[string]any{"placeholder_ids": placeholderIDs}
	var resp contentBlocksResponse
	if err := c.do(ctx, http.MethodPost, url, body, &resp); err != nil {
		return nil, domain.NewFetchError("content blocks", err)
	}
	return resp.Blocks, nil
}

// FetchInAppMessages implements Client.
func (c *HTTPClient) FetchInAppMessages(ctx context.Context) ([]*domain.Candidate, error) {
	url := fmt.Sprintf("%s/webxp/projects/%s/inappmessages", c.config.Endpoint, c.config.ProjectToken)

	var resp inAppMessagesResponse
	if err := c.do(ctx, http.MethodPost, url, map[string]any{}, &resp); err != nil {
		return nil, domain.NewFetchError("in-app messages", err)
	}
	return resp.Messages, nil
}

// FetchSegments implements Client.
func (c *HTTPClient) FetchSegments(ctx context.Context, cookie string, externalIDs map[string]string) (domain.SegmentData, error) {
	url := fmt.Sprintf("%s/webxp/projects/%s/segments", c.config.Endpoint, c.config.ProjectToken)

	var resp domain.SegmentData
	req := segmentsRequest{Cookie: cookie, ExternalIDs: externalIDs}
	if err := c.do(ctx, http.MethodPost, url, req, &resp); err != nil {
		return domain.SegmentData{}, domain.NewFetchError("segments", err)
	}
	return resp, nil
}

func (c *HTTPClient) do(ctx context.Context, method, url string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(err, "marshal request body")
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return pkgerrors.Wrap(err, "create request")
	}

	req.Header.Set("Content-Type", "application/json")
	if c.config.Authorization != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.config.Authorization))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return pkgerrors.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return pkgerrors.Wrapf(err, "unmarshal response (body: %s)", string(respBody))
		}
	}

	return nil
}

// HTTPError represents a non-2xx API response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}
