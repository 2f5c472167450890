// Package notion is a lightweight client for the parts of the Notion API the
// ingestion pipeline needs: querying a database of documentation pages and
// reading their block content.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/exbordia/exbordia/internal/log"
)

const (
	// DefaultBaseURL is the base URL for the Notion API.
	DefaultBaseURL = "https://api.notion.com"

	// DefaultVersion is the Notion-Version header value.
	DefaultVersion = "2022-06-28"

	// requestTimeout bounds a single API request.
	requestTimeout = 30 * time.Second

	// pageSize is the maximum page size the Notion API allows.
	pageSize = 100
)

// maxResponseBytes caps API response bodies (4 MB).
const maxResponseBytes = 4 << 20

// Client is a Notion API client.
type Client struct {
	token      string
	version    string
	baseURL    string
	httpClient *http.Client
	logger     log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. Used by tests to point the client
// at a local server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithVersion overrides the Notion-Version header value.
func WithVersion(v string) Option {
	return func(c *Client) { c.version = v }
}

// New creates a Notion API client.
func New(token string, logger log.Logger, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("notion token is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	c := &Client{
		token:      token,
		version:    DefaultVersion,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// QueryDatabase returns every page of a Notion database.
// Pagination is handled internally.
func (c *Client) QueryDatabase(ctx context.Context, databaseID string) ([]Page, error) {
	if databaseID == "" {
		return nil, fmt.Errorf("database id is required")
	}

	var allPages []Page
	startCursor := ""

	for {
		req := QueryDatabaseRequest{
			PageSize:    pageSize,
			StartCursor: startCursor,
		}

		endpoint := fmt.Sprintf("%s/v1/databases/%s/query", c.baseURL, url.PathEscape(databaseID))
		var resp QueryDatabaseResponse
		if err := c.do(ctx, http.MethodPost, endpoint, req, &resp); err != nil {
			return nil, fmt.Errorf("querying database %s: %w", databaseID, err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		startCursor = resp.NextCursor
	}

	c.logger.Info("notion database query completed",
		"database_id", databaseID,
		"page_count", len(allPages))

	return allPages, nil
}

// GetBlockChildren retrieves all child blocks of a block (a page ID works).
// Pagination is handled internally and nested blocks are flattened in after
// their parent; failures on nested levels are logged and skipped.
func (c *Client) GetBlockChildren(ctx context.Context, blockID string) ([]Block, error) {
	var allBlocks []Block
	startCursor := ""

	for {
		endpoint := fmt.Sprintf("%s/v1/blocks/%s/children?page_size=%d", c.baseURL, url.PathEscape(blockID), pageSize)
		if startCursor != "" {
			endpoint += "&start_cursor=" + url.QueryEscape(startCursor)
		}

		var resp BlockChildrenResponse
		if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
			return nil, fmt.Errorf("getting block children of %s: %w", blockID, err)
		}

		allBlocks = append(allBlocks, resp.Results...)

		if !resp.HasMore {
			break
		}
		startCursor = resp.NextCursor
	}

	var flattened []Block
	for _, block := range allBlocks {
		flattened = append(flattened, block)

		if block.HasChildren {
			children, err := c.GetBlockChildren(ctx, block.ID)
			if err != nil {
				c.logger.Warn("failed to retrieve nested blocks",
					"block_id", block.ID,
					"error", err)
				continue
			}
			flattened = append(flattened, children...)
		}
	}

	return flattened, nil
}

// do executes one API request and unmarshals the response into result.
func (c *Client) do(ctx context.Context, method, endpoint string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", c.version)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notion API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshaling response: %w", err)
		}
	}

	return nil
}
