// Package feed polls the AlienVault OTX "subscribed pulses" API.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/edgeflare/threatflow/pkg/httputil"
	"github.com/edgeflare/threatflow/pkg/metrics"
	"go.uber.org/zap"
)

const (
	DefaultURL          = "https://otx.alienvault.com/api/v1/pulses/subscribed"
	DefaultAPIKeyHeader = "X-OTX-API-KEY"
)

var (
	ErrUpstreamFetch = errors.New("upstream fetch failed")
	ErrMissingAPIKey = errors.New("OTX API key is not set")
)

// ErrorPayload is published in place of feed data when a fetch fails.
type ErrorPayload struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Poller fetches one snapshot of the feed per call.
type Poller struct {
	client       *http.Client
	logger       *zap.Logger
	url          string
	apiKey       string
	apiKeyHeader string
}

type Options struct {
	Client       *http.Client
	Logger       *zap.Logger
	URL          string
	APIKeyHeader string
	Timeout      time.Duration
}

// NewPoller returns a Poller authenticating with apiKey. A blank apiKey is an error.
func NewPoller(apiKey string, opts Options) (*Poller, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	p := &Poller{
		client:       opts.Client,
		logger:       opts.Logger,
		url:          opts.URL,
		apiKey:       apiKey,
		apiKeyHeader: opts.APIKeyHeader,
	}
	if p.url == "" {
		p.url = DefaultURL
	}
	if p.apiKeyHeader == "" {
		p.apiKeyHeader = DefaultAPIKeyHeader
	}
	if p.client == nil {
		// zero timeout leaves the transport defaults in charge
		p.client = &http.Client{Timeout: opts.Timeout}
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p, nil
}

// Fetch performs one GET against the feed. It always returns publishable JSON:
// the (compacted) response body on 200, otherwise an ErrorPayload.
func (p *Poller) Fetch(ctx context.Context) []byte {
	data, err := p.fetch(ctx)
	if err == nil {
		return data
	}

	metrics.FetchErrors.Inc()
	p.logger.Warn("feed fetch failed", zap.String("url", p.url), zap.Error(fmt.Errorf("%w: %w", ErrUpstreamFetch, err)))

	var payloadErr *payloadError
	if errors.As(err, &payloadErr) {
		return payloadErr.payload
	}
	return marshalPayload(ErrorPayload{Error: "OTX API error: " + err.Error()})
}

// payloadError carries the ErrorPayload to publish for a failed fetch.
type payloadError struct {
	payload []byte
}

func (e *payloadError) Error() string {
	return string(e.payload)
}

// fetch returns the compacted body of a 200 response. Errors are returned unwrapped.
func (p *Poller) fetch(ctx context.Context) ([]byte, error) {
	config := httputil.DefaultRequestConfig(http.MethodGet, p.url)
	config.Client = p.client
	config.Logger = p.logger
	config.RetryEnabled = false
	config.Headers = map[string][]string{p.apiKeyHeader: {p.apiKey}}

	resp, err := httputil.Request(ctx, config, nil)

	var statusErr *httputil.StatusError
	switch {
	case errors.As(err, &statusErr), err == nil && resp.StatusCode != http.StatusOK:
		p.logger.Info("feed responded", zap.Int("status", resp.StatusCode))
		return nil, &payloadError{marshalPayload(ErrorPayload{
			Error:   fmt.Sprintf("OTX API failed with status code %d", resp.StatusCode),
			Details: string(resp.Body),
		})}
	case err != nil:
		return nil, err
	}

	p.logger.Info("feed responded", zap.Int("status", resp.StatusCode))

	var buf bytes.Buffer
	if err := json.Compact(&buf, resp.Body); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}
	return buf.Bytes(), nil
}

func marshalPayload(p ErrorPayload) []byte {
	data, err := json.Marshal(p)
	if err != nil {
		// ErrorPayload only holds strings
		panic(err)
	}
	return data
}
