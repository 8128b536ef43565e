// Package opendata fetches and parses the Vancouver public washroom dataset.
package opendata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when the upstream has no dataset at the URL.
var ErrNotFound = errors.New("opendata: not found")

// Source yields the raw CSV export.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// FileSource reads the export from local disk.
type FileSource struct {
	Path string
}

// Open implements Source.
func (f FileSource) Open(context.Context) (io.ReadCloser, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	return file, nil
}

// HTTPClient downloads the export over HTTP.
type HTTPClient struct {
	endpoint *url.URL
	client   *http.Client
	logger   zerolog.Logger
}

// NewHTTPClient builds a client for the dataset at rawURL.
func NewHTTPClient(rawURL string, timeout time.Duration, logger zerolog.Logger) (*HTTPClient, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse opendata url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("opendata url must be http or https, got %q", rawURL)
	}
	return &HTTPClient{
		endpoint: parsed,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		logger: logger.With().Str("component", "opendata").Logger(),
	}, nil
}

// Open implements Source. The caller closes the returned body.
func (c *HTTPClient) Open(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, nil
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, ErrNotFound
	default:
		resp.Body.Close()
		c.logger.Warn().Int("status", resp.StatusCode).Str("url", c.endpoint.String()).Msg("unexpected upstream status")
		return nil, fmt.Errorf("opendata: upstream returned %d", resp.StatusCode)
	}
}
