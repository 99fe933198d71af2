package twitter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/amaumene/harvestarr/internal/config"
	"github.com/amaumene/harvestarr/internal/models"
)

// Lookup bodies above this size are rejected as malformed
const maxLookupSize = 5 * 1024 * 1024

// Client wraps the upstream post lookup
type Client struct {
	baseURL     string
	bearerToken string
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      *logrus.Logger
}

// NewClient creates a new lookup client
func NewClient(cfg *config.Config, logger *logrus.Logger) (*Client, error) {
	if cfg.LookupBaseURL == "" {
		return nil, fmt.Errorf("lookup base URL is required")
	}
	if _, err := url.Parse(cfg.LookupBaseURL); err != nil {
		return nil, fmt.Errorf("invalid lookup base URL: %w", err)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.LookupRatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.LookupRatePerSec), 1)
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.LookupBaseURL, "/"),
		bearerToken: cfg.LookupBearerToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: limiter,
		logger:  logger,
	}, nil
}

// LookupPost fetches one post by identifier. It never retries: non-2xx
// statuses surface as upstream errors and undecodable bodies as malformed.
func (c *Client) LookupPost(ctx context.Context, postID string) (*Post, error) {
	const op = "lookup"

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, models.NewError(models.KindCancelled, op, err)
	}

	params := url.Values{}
	params.Add("id", postID)
	params.Add("include_entities", "true")
	params.Add("tweet_mode", "extended")
	finalURL := c.baseURL + "/statuses/show.json?" + params.Encode()

	c.logger.WithFields(logrus.Fields{
		"url":     finalURL,
		"post_id": postID,
	}).Debug("Looking up post")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return nil, models.NewError(models.KindUpstream, op, fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("User-Agent", "harvestarr/1.0")
	req.Header.Set("Accept", "application/json")
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, models.NewError(models.KindTimeout, op, err)
		}
		return nil, models.NewError(models.KindUpstream, op, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"body":        string(body),
		}).Warn("Lookup returned non-success status")
		return nil, models.NewStatusError(models.KindUpstream, op, resp.StatusCode,
			fmt.Errorf("lookup returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLookupSize+1))
	if err != nil {
		return nil, models.NewError(models.KindUpstream, op, fmt.Errorf("failed to read response body: %w", err))
	}
	if len(body) > maxLookupSize {
		return nil, models.NewError(models.KindMalformedResponse, op, fmt.Errorf("response exceeds %d bytes", maxLookupSize))
	}

	post, err := DecodePost(body)
	if err != nil {
		return nil, models.NewError(models.KindMalformedResponse, op, err)
	}

	c.logger.WithFields(logrus.Fields{
		"post_id": post.ID,
		"media":   len(post.Media()),
	}).Debug("Post lookup completed")

	return post, nil
}
