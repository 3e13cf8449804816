package novaposhta

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// HTTPAPIClient is the production implementation of APIClient using the JSON API.
type HTTPAPIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &HTTPAPIClient{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetCities fetches one page of the city directory.
func (c *HTTPAPIClient) GetCities(ctx context.Context, page, limit int) ([]City, error) {
	return call[City](ctx, c, "AddressGeneral", "getCities", PageProperties{Page: page, Limit: limit})
}

// GetWarehouses fetches one page of the warehouse directory for a city.
func (c *HTTPAPIClient) GetWarehouses(ctx context.Context, cityRef string, page, limit int) ([]Warehouse, error) {
	return call[Warehouse](ctx, c, "AddressGeneral", "getWarehouses", PageProperties{CityRef: cityRef, Page: page, Limit: limit})
}

// SaveInternetDocument creates an express waybill.
func (c *HTTPAPIClient) SaveInternetDocument(ctx context.Context, req *InternetDocumentRequest) (*InternetDocument, error) {
	docs, err := call[InternetDocument](ctx, c, "InternetDocument", "save", req)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, &APIError{StatusCode: http.StatusOK, Err: fmt.Errorf("empty document list in response")}
	}
	return &docs[0], nil
}

// call posts one request envelope and decodes the response data.
func call[T any](ctx context.Context, c *HTTPAPIClient, model, method string, props any) ([]T, error) {
	body, err := json.Marshal(Request{
		APIKey:           c.apiKey,
		ModelName:        model,
		CalledMethod:     method,
		MethodProperties: props,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "uadirectory/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode}
	}

	var decoded Response[T]
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected response: %w", err)}
	}
	if !decoded.Success {
		return nil, &APIError{StatusCode: resp.StatusCode, Rejected: true, Messages: decoded.Errors}
	}
	return decoded.Data, nil
}

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)
