// Package mirror keeps the local registry in step with the upstream
// content-type hub: a resilient fetch client and a periodic sync job
// that tolerates partial failure.
package mirror

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/jamestagal/leaplearn/registry/internal/infrastructure/resilience"
	"github.com/jamestagal/leaplearn/registry/internal/shared/errs"
	"github.com/jamestagal/leaplearn/registry/internal/shared/types"
)

// Listing is the hub's package inventory. The digest changes whenever
// any entry changes, so an unchanged digest short-circuits a sync run.
type Listing struct {
	Digest  string         `json:"digest"`
	Entries []ListingEntry `json:"packages"`
}

// ListingEntry is one hub package version on offer.
type ListingEntry struct {
	Name        string `json:"machine_name"`
	Major       int    `json:"major_version"`
	Minor       int    `json:"minor_version"`
	Patch       int    `json:"patch_version"`
	ContentHash string `json:"content_hash"`
	ArchivePath string `json:"archive_path"`
}

// Key returns the entry's identity tuple.
func (e ListingEntry) Key() types.VersionKey {
	return types.VersionKey{Name: e.Name, Major: e.Major, Minor: e.Minor, Patch: e.Patch}
}

// Client fetches listings and archives from the upstream hub. The
// circuit breaker sits in front of every request so a dead hub fails
// fast instead of stacking timeouts.
type Client struct {
	resty   *resty.Client
	breaker *resilience.Breaker
	limiter *rate.Limiter
	baseURL string
}

// NewClient creates a hub client with retry, rate limiting, and a
// circuit breaker.
func NewClient(baseURL string) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 15 * time.Second
	retryClient.Logger = nil

	restyClient := resty.New()
	restyClient.
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetHeader("User-Agent", "LeapLearn-Registry/1.0").
		SetTransport(retryClient.HTTPClient.Transport)

	breaker := resilience.New("hub-upstream", resilience.Settings{
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		resty:   restyClient,
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(10), 10),
		baseURL: baseURL,
	}
}

// FetchListing downloads the hub's current package inventory.
func (c *Client) FetchListing(ctx context.Context) (*Listing, error) {
	body, err := c.get(ctx, "/listing")
	if err != nil {
		return nil, err
	}

	var listing Listing
	if err := sonic.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("malformed hub listing: %w", errs.ErrUpstreamFetchFailed)
	}
	return &listing, nil
}

// FetchArchive downloads one package archive by its listing path.
func (c *Client) FetchArchive(ctx context.Context, archivePath string) ([]byte, error) {
	return c.get(ctx, archivePath)
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.resty.R().SetContext(ctx).Get(path)
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("hub returned %d for %s", resp.StatusCode(), path)
		}
		return resp.Body(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("hub fetch %s: %v: %w", path, err, errs.ErrUpstreamFetchFailed)
	}
	return result.([]byte), nil
}
