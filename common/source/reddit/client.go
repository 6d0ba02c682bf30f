package reddit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aurachat/empathy-crawler-service/common/config"
	"github.com/aurachat/empathy-crawler-service/common/ratelimit"
	"github.com/aurachat/empathy-crawler-service/common/source"
	"github.com/rs/zerolog/log"
	"github.com/samber/mo"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const pageSize = 100

// Client talks to the Reddit listing API over OAuth and maps its failures
// onto the source error taxonomy. It satisfies source.Client.
type Client struct {
	cfg        config.RedditConfig
	httpClient *http.Client
	limiter    *ratelimit.Limiter
}

// userAgentTransport stamps every request with the configured user agent.
// Reddit throttles the default Go user agent aggressively.
type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(clone)
}

// NewClient creates a Reddit API client using OAuth client credentials.
func NewClient(ctx context.Context, cfg config.RedditConfig) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, source.NewError(source.KindAuth, "setup", fmt.Errorf("missing reddit credentials"))
	}

	base := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &userAgentTransport{
			agent: cfg.UserAgent,
			base:  http.DefaultTransport,
		},
	}

	creds := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	// The oauth2 transport reuses the user-agent client for token refresh.
	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, base)
	httpClient := creds.Client(tokenCtx)
	httpClient.Timeout = cfg.Timeout

	log.Info().Str("baseURL", cfg.BaseURL).Msg("Reddit client initialized")

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
	}, nil
}

// ListPosts returns a lazy sequence over the community's hot listing. Pages
// are fetched one at a time as the sequence advances.
func (c *Client) ListPosts(ctx context.Context, community string, limit int) source.PostSeq {
	return &postSeq{
		client:    c,
		community: community,
		remaining: limit,
	}
}

// ListComments returns a lazy sequence over a post's comment tree, flattened
// in thread order (top-level comments before their replies, siblings in
// listing order).
func (c *Client) ListComments(ctx context.Context, postID string, limit int) source.CommentSeq {
	return &commentSeq{
		client:    c,
		postID:    postID,
		remaining: limit,
	}
}

// SetLimiter installs the shared request gate. When set, every API request
// acquires one token before going out.
func (c *Client) SetLimiter(l *ratelimit.Limiter) {
	c.limiter = l
}

// get performs one API request and decodes the body, mapping HTTP failures
// onto the error taxonomy.
func (c *Client) get(ctx context.Context, op, url string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, source.NewError(source.KindTransient, op, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Token fetch rejections surface as RetrieveError on Do.
		if isAuthRetrieveError(err) {
			return nil, source.NewError(source.KindAuth, op, err)
		}
		return nil, source.NewError(source.KindTransient, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, source.NewError(source.KindTransient, op, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, mapStatus(op, resp)
	}

	return body, nil
}

func mapStatus(op string, resp *http.Response) error {
	statusErr := fmt.Errorf("unexpected status %d", resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return source.NewRateLimitError(op, retryAfterHint(resp), statusErr)
	case resp.StatusCode == http.StatusUnauthorized:
		return source.NewError(source.KindAuth, op, statusErr)
	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusNotFound:
		// Private, banned or deleted content. Not an error: the crawl
		// treats it as an empty listing.
		return source.NewError(source.KindUnavailable, op, statusErr)
	case resp.StatusCode >= 500:
		return source.NewError(source.KindTransient, op, statusErr)
	default:
		return source.NewError(source.KindTransient, op, statusErr)
	}
}

func retryAfterHint(resp *http.Response) mo.Option[time.Duration] {
	ra := resp.Header.Get("Retry-After")
	if ra == "" {
		return mo.None[time.Duration]()
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(ra))
	if err != nil || seconds <= 0 {
		return mo.None[time.Duration]()
	}
	return mo.Some(time.Duration(seconds) * time.Second)
}

func isAuthRetrieveError(err error) bool {
	var re *oauth2.RetrieveError
	return errors.As(err, &re)
}
