package endpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

// SwaggerClient reaches an instance's API documentation endpoints.
type SwaggerClient struct {
	c        *Client
	uiPath   string
	docsPath string
}

// NewSwaggerClient binds the UI and document paths to c.
func NewSwaggerClient(c *Client, uiPath, docsPath string) *SwaggerClient {
	return &SwaggerClient{c: c, uiPath: uiPath, docsPath: docsPath}
}

// GetSwaggerUI fetches the interactive documentation page.
func (s *SwaggerClient) GetSwaggerUI(ctx context.Context) (*Response, error) {
	return s.c.Get(ctx, s.uiPath)
}

// GetSwaggerDocs fetches the machine-readable API description.
func (s *SwaggerClient) GetSwaggerDocs(ctx context.Context) (*Response, error) {
	return s.c.Get(ctx, s.docsPath)
}

// HealthClient reaches an instance's liveness endpoint.
type HealthClient struct {
	c    *Client
	path string
}

// NewHealthClient binds the health path to c.
func NewHealthClient(c *Client, path string) *HealthClient {
	return &HealthClient{c: c, path: path}
}

// GetHealth fetches the liveness endpoint.
func (h *HealthClient) GetHealth(ctx context.Context) (*Response, error) {
	return h.c.Get(ctx, h.path)
}

// ErrEmptyDocument is returned by ParseOpenAPI for an empty body.
var ErrEmptyDocument = errors.New("empty OpenAPI document")

// ParseOpenAPI loads and validates an OpenAPI 3 document.
func ParseOpenAPI(ctx context.Context, body []byte) (*openapi3.T, error) {
	if len(body) == 0 {
		return nil, ErrEmptyDocument
	}
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(body)
	if err != nil {
		return nil, fmt.Errorf("parsing OpenAPI document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validating OpenAPI document: %w", err)
	}
	return doc, nil
}
