package apiclient

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

	"catalog-frontend/internal/models"
	"catalog-frontend/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// APIError is returned for any non-2xx response from the remote API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
	Header     http.Header
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Client talks to the remote product/review REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new API client. A zero timeout leaves requests
// unbounded; callers still cancel through their context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     util.Named("apiclient"),
	}
}

// ListProducts fetches GET /products and unwraps the data envelope.
func (c *Client) ListProducts(ctx context.Context) ([]models.Product, error) {
	var envelope models.ProductList
	if err := c.do(ctx, "ListProducts", http.MethodGet, "/products", nil, &envelope); err != nil {
		return nil, err
	}
	if envelope.Data == nil {
		return []models.Product{}, nil
	}
	return envelope.Data, nil
}

// GetProduct fetches one product by identifier.
func (c *Client) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	if err := c.do(ctx, "GetProduct", http.MethodGet, "/products/"+url.PathEscape(id), nil, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// CreateProduct posts a new product and returns the created record.
func (c *Client) CreateProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	var created models.Product
	if err := c.do(ctx, "CreateProduct", http.MethodPost, "/products", product, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateProduct sends every field of product as a PATCH keyed by id.
func (c *Client) UpdateProduct(ctx context.Context, id string, product *models.Product) (*models.Product, error) {
	var updated models.Product
	if err := c.do(ctx, "UpdateProduct", http.MethodPatch, "/products/"+url.PathEscape(id), product, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteProduct deletes a product by identifier.
func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	return c.do(ctx, "DeleteProduct", http.MethodDelete, "/products/"+url.PathEscape(id), nil, nil)
}

// ListReviews fetches the reviews of one product.
func (c *Client) ListReviews(ctx context.Context, productID string) ([]models.Review, error) {
	var reviews []models.Review
	if err := c.do(ctx, "ListReviews", http.MethodGet, "/reviews/"+url.PathEscape(productID), nil, &reviews); err != nil {
		return nil, err
	}
	if reviews == nil {
		reviews = []models.Review{}
	}
	return reviews, nil
}

// CreateReview posts a review.
func (c *Client) CreateReview(ctx context.Context, req *models.ReviewRequest) (*models.Review, error) {
	var created models.Review
	if err := c.do(ctx, "CreateReview", http.MethodPost, "/reviews", req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out interface{}) (err error) {
	ctx, span := util.StartSpan(ctx, "APIClient."+op)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.path", path),
	)

	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		util.APIRequestDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
	}()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s body: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
			Header:     resp.Header.Clone(),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}

	c.logger.Debug("API call completed",
		zap.String("operation", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}
