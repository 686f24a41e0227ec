package coingecko

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

const (
	// PublicURL is the base URL of the public API
	PublicURL = "https://api.coingecko.com"
	// ProURL is the base URL of the Pro API
	ProURL = "https://pro-api.coingecko.com"

	proKeyParam  = "x_cg_pro_api_key"
	demoKeyParam = "x_cg_demo_api_key"
)

// RequestBuilder implements the Builder pattern for CoinGecko API requests
type RequestBuilder struct {
	baseURL   string
	apiPath   string
	params    url.Values
	apiKey    APIKey
	userAgent string
}

// NewRequestBuilder creates a GET request builder for apiPath under baseURL
func NewRequestBuilder(baseURL, apiPath string) *RequestBuilder {
	return &RequestBuilder{
		baseURL:   baseURL,
		apiPath:   apiPath,
		params:    url.Values{},
		userAgent: "Mozilla/5.0 Market-Hydrator",
	}
}

// With adds a query parameter
func (rb *RequestBuilder) With(key, value string) *RequestBuilder {
	if value != "" {
		rb.params.Set(key, value)
	}
	return rb
}

// WithCurrency adds vs_currency
func (rb *RequestBuilder) WithCurrency(currency string) *RequestBuilder {
	return rb.With("vs_currency", strings.ToLower(currency))
}

// WithApiKey authenticates the request with key
func (rb *RequestBuilder) WithApiKey(key APIKey) *RequestBuilder {
	rb.apiKey = key
	return rb
}

// BuildURL builds the complete URL for the request
func (rb *RequestBuilder) BuildURL() string {
	query := url.Values{}
	for k, v := range rb.params {
		query[k] = v
	}
	switch rb.apiKey.Type {
	case ProKey:
		query.Set(proKeyParam, rb.apiKey.Key)
	case DemoKey:
		query.Set(demoKeyParam, rb.apiKey.Key)
	}

	full := strings.TrimRight(rb.baseURL, "/") + "/" + strings.TrimLeft(rb.apiPath, "/")
	if encoded := query.Encode(); encoded != "" {
		full += "?" + encoded
	}
	return full
}

// Build creates the http.Request bound to ctx
func (rb *RequestBuilder) Build(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rb.BuildURL(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", rb.userAgent)
	return req, nil
}
