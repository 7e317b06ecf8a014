// Package client is a small typed client for the maize-backend HTTP API.
package client

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"maize-backend/pkg/api"

	"github.com/go-resty/resty/v2"
)

const uploadField = "file"

type Client struct {
	http *resty.Client
}

func New(baseURL string) *Client {
	return &Client{http: resty.New().SetBaseURL(baseURL)}
}

func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var out api.HealthResponse
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/health")
	if err != nil {
		return nil, fmt.Errorf("health request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("health request returned %d: %s", resp.StatusCode(), resp.String())
	}
	return &out, nil
}

func (c *Client) Classes(ctx context.Context) (*api.ClassesResponse, error) {
	var out api.ClassesResponse
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/classes")
	if err != nil {
		return nil, fmt.Errorf("classes request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("classes request returned %d: %s", resp.StatusCode(), resp.String())
	}
	return &out, nil
}

// Predict uploads image bytes for classification. The part content type is
// sniffed from the bytes since the server rejects non-image uploads.
func (c *Client) Predict(ctx context.Context, filename string, image []byte) (*api.PredictResponse, error) {
	var out api.PredictResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetMultipartField(uploadField, filename, http.DetectContentType(image), bytes.NewReader(image)).
		SetResult(&out).
		Post("/predict")
	if err != nil {
		return nil, fmt.Errorf("predict request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("predict request returned %d: %s", resp.StatusCode(), resp.String())
	}
	return &out, nil
}
