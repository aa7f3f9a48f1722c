package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/rohits-web03/meshforge/internal/config"
)

// Submitter sends one generation request and returns the endpoint's answer.
type Submitter interface {
	Submit(ctx context.Context, req *Request) (*RawResponse, error)
}

// Client posts images to the image-to-3D endpoint. It never retries.
type Client struct {
	endpoint string
	http     *resty.Client
	logger   *zap.Logger
}

func NewClient(cfg config.GenerationConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := resty.New()
	if cfg.Timeout > 0 {
		hc.SetTimeout(cfg.Timeout)
	}
	return &Client{
		endpoint: cfg.Endpoint,
		http:     hc,
		logger:   logger.With(zap.String("component", "generation_client")),
	}
}

// Submit sends every image as a repeated "files" multipart field, in order.
// Network failures and non-2xx statuses match ErrTransport; a body that is not
// the expected JSON matches ErrApplicationFailure.
func (c *Client) Submit(ctx context.Context, req *Request) (*RawResponse, error) {
	if req == nil || !ValidImageCount(len(req.Images)) {
		return nil, ErrInvalidInputCount
	}

	fields := make([]*resty.MultipartField, 0, len(req.Images))
	for _, img := range req.Images {
		fields = append(fields, &resty.MultipartField{
			Param:       "files",
			FileName:    img.Filename,
			ContentType: img.ContentType,
			Reader:      bytes.NewReader(img.Data),
		})
	}

	c.logger.Debug("submitting generation", zap.Int("images", len(req.Images)), zap.String("endpoint", c.endpoint))

	resp, err := c.http.R().
		SetContext(ctx).
		SetMultipartFields(fields...).
		Post(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: unexpected status %d: %s", ErrTransport, resp.StatusCode(), truncate(resp.String(), 256))
	}

	var raw RawResponse
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrApplicationFailure, err)
	}

	c.logger.Debug("generation response",
		zap.String("status", raw.Status),
		zap.Int("http_status", resp.StatusCode()),
		zap.Duration("elapsed", resp.Time()),
	)
	return &raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
