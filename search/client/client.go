// Package client provides an http client for a typeahead search endpoint.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-retryablehttp"
	logging "github.com/ipfs/go-log/v2"
	"github.com/typeahead/go-typeahead/apierror"
	"github.com/typeahead/go-typeahead/search/model"
	"github.com/typeahead/go-typeahead/trigger"
)

const searchPath = "search"

var log = logging.Logger("search/client")

// Client is an http client for the search API. It queries one or more
// endpoints, trying each in order until one succeeds.
type Client struct {
	c      *http.Client
	urls   []*url.URL
	apiKey string
}

// Client must implement the trigger's Fetcher.
var _ trigger.Fetcher = (*Client)(nil)

// New creates a new search HTTP client for the endpoint at baseURL.
func New(baseURL string, options ...Option) (*Client, error) {
	opts, err := getOpts(options)
	if err != nil {
		return nil, err
	}

	endpoints := append([]string{baseURL}, opts.extraEndpoints...)
	urls := make([]*url.URL, len(endpoints))
	for i, endpoint := range endpoints {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, err
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("url must have http or https scheme: %s", endpoint)
		}
		u.Path = ""
		urls[i] = u.JoinPath(searchPath)
	}

	httpClient := opts.httpClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: opts.httpTimeout,
		}
	}
	if opts.retryMax != 0 {
		// Instantiate retryable HTTP client.
		rclient := &retryablehttp.Client{
			HTTPClient:   httpClient,
			RetryWaitMin: opts.retryWaitMin,
			RetryWaitMax: opts.retryWaitMax,
			RetryMax:     opts.retryMax,
			CheckRetry:   retryablehttp.DefaultRetryPolicy,
			Backoff:      retryablehttp.DefaultBackoff,
		}
		httpClient = rclient.StandardClient()
	}

	return &Client{
		c:      httpClient,
		urls:   urls,
		apiKey: opts.apiKey,
	}, nil
}

// Search queries the endpoints for results matching query. Endpoints are
// tried in order and the first success wins; if all fail, the failures are
// returned as one error. A 404 response means no matches and returns an
// empty response without error.
func (c *Client) Search(ctx context.Context, query string) (*model.SearchResponse, error) {
	var errs error
	for _, u := range c.urls {
		resp, err := c.searchEndpoint(ctx, u, query)
		if err != nil {
			if apierror.IsCancellation(err) {
				// No point trying other endpoints.
				return nil, err
			}
			log.Debugw("Search endpoint failed", "err", err, "url", u)
			errs = multierror.Append(errs, err)
			continue
		}
		return resp, nil
	}
	return nil, errs
}

func (c *Client) searchEndpoint(ctx context.Context, u *url.URL, query string) (*model.SearchResponse, error) {
	reqURL := *u
	q := reqURL.Query()
	q.Set("q", query)
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Add("Accept", "application/json")

	resp, err := c.c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound {
			return &model.SearchResponse{}, nil
		}
		return nil, apierror.FromResponse(resp.StatusCode, body)
	}

	return model.UnmarshalSearchResponse(body)
}

// String returns a description of the client.
func (c *Client) String() string {
	return "search client " + c.urls[0].String()
}
