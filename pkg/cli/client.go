package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a thin HTTP client for the /v1 governance API.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	HTTPStatus int
	Code       string
	Message    string
	EntityID   string
	Rule       string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("API error (HTTP %d): %s", e.HTTPStatus, e.Message)
	if e.Rule != "" {
		msg += fmt.Sprintf(" [rule: %s]", e.Rule)
	}
	return msg
}

// Do sends a request to /v1 + path. A non-nil body is encoded as JSON.
func (c *Client) Do(method, path string, query url.Values, body any) (*http.Response, error) {
	u := c.BaseURL + "/v1" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	return resp, nil
}

// Call sends a request and decodes a successful JSON response into out,
// which may be nil.
func (c *Client) Call(method, path string, query url.Values, body, out any) error {
	resp, err := c.Do(method, path, query, body)
	if err != nil {
		return err
	}
	if err := CheckError(resp); err != nil {
		return err
	}
	data, err := ReadBody(resp)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// CheckError returns an *APIError for non-2xx responses. The body is
// consumed and closed in that case.
func CheckError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	data, _ := ReadBody(resp)

	apiErr := &APIError{HTTPStatus: resp.StatusCode}
	var body struct {
		Code     string `json:"code"`
		Message  string `json:"message"`
		EntityID string `json:"entity_id"`
		Rule     string `json:"rule"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
		apiErr.EntityID = body.EntityID
		apiErr.Rule = body.Rule
		return apiErr
	}
	apiErr.Message = string(data)
	return apiErr
}

// ReadBody reads and closes the response body.
func ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close() //nolint:errcheck
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

// PaginatedResponse is the envelope of paged list endpoints.
type PaginatedResponse struct {
	Data          []any  `json:"data"`
	NextPageToken string `json:"next_page_token,omitempty"`
	Total         int64  `json:"total"`
}

// FetchAllPages follows next_page_token until the list is exhausted.
func FetchAllPages(c *Client, method, path string, query url.Values) ([]any, error) {
	var all []any
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	for {
		var page PaginatedResponse
		if err := c.Call(method, path, q, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Data...)
		if page.NextPageToken == "" {
			return all, nil
		}
		q.Set("page_token", page.NextPageToken)
	}
}
