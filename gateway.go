package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// maxCommentPageSize is the per-page size requested from the listing API.
const maxCommentPageSize = 100

// ReviewGateway fetches pull request data from GitHub. Metadata fetches go
// through the conditional-revalidation cache; comment lists are re-fetched
// on every load.
type ReviewGateway struct {
	cache      *MetadataCache
	ttl        time.Duration
	httpClient *http.Client
	github     *gogithub.Client
	now        func() time.Time
}

// NewReviewGateway builds a gateway for the given locator host. token may be
// empty for public repositories. The cache may be nil, in which case every
// metadata fetch goes to the network unconditionally.
func NewReviewGateway(ctx context.Context, token, baseURL string, cache *MetadataCache, ttl time.Duration) (*ReviewGateway, error) {
	httpClient := http.DefaultClient
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(ctx, ts)
	}

	gh := gogithub.NewClient(httpClient)
	if baseURL != "" {
		var err error
		gh, err = gh.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, &ConfigError{Message: "invalid GitHub base URL: " + err.Error()}
		}
	}

	return &ReviewGateway{
		cache:      cache,
		ttl:        ttl,
		httpClient: httpClient,
		github:     gh,
		now:        time.Now,
	}, nil
}

// newReviewGatewayWithClients builds a gateway with injected clients,
// allowing tests to point it at a local httptest server.
func newReviewGatewayWithClients(httpClient *http.Client, gh *gogithub.Client, cache *MetadataCache, ttl time.Duration) *ReviewGateway {
	return &ReviewGateway{
		cache:      cache,
		ttl:        ttl,
		httpClient: httpClient,
		github:     gh,
		now:        time.Now,
	}
}

// FetchMetadata returns the pull request metadata for locator, serving a
// fresh cache entry without a network request and revalidating a stale one
// with conditional headers. A 200 overwrites the entry; a 304 refreshes the
// cached entry's freshness window and returns the cached body.
func (g *ReviewGateway) FetchMetadata(ctx context.Context, locator PullRequestLocator) (PullRequestMetadata, error) {
	key := CacheKey{Owner: locator.Owner, Repo: locator.Repo, Number: locator.Number}

	var cached CacheEntry
	var haveCached bool
	if g.cache != nil {
		var err error
		cached, haveCached, err = g.cache.Get(key)
		if err != nil {
			return PullRequestMetadata{}, err
		}
		if haveCached && IsFresh(cached, g.now(), g.ttl) {
			return decodeMetadata(cached.Body)
		}
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/pulls/%d", locator.APIBase, locator.Owner, locator.Repo, locator.Number)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return PullRequestMetadata{}, &NetworkError{Err: err}
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if haveCached {
		if cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}
		if cached.LastModified != "" {
			req.Header.Set("If-Modified-Since", cached.LastModified)
		}
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return PullRequestMetadata{}, &NetworkError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusNotModified:
		if !haveCached {
			return PullRequestMetadata{}, &APIError{
				Status:  resp.StatusCode,
				Message: fmt.Sprintf("unexpected 304 for uncached pull request %s/%s#%d", locator.Owner, locator.Repo, locator.Number),
			}
		}
		if err := g.cache.Touch(key, g.now()); err != nil {
			return PullRequestMetadata{}, err
		}
		return decodeMetadata(cached.Body)
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return PullRequestMetadata{}, &NetworkError{Err: err}
		}
		if g.cache != nil {
			etag := resp.Header.Get("ETag")
			lastModified := resp.Header.Get("Last-Modified")
			if err := g.cache.Put(key, body, etag, lastModified, g.now()); err != nil {
				return PullRequestMetadata{}, err
			}
		}
		return decodeMetadata(body)
	default:
		return PullRequestMetadata{}, apiErrorFromResponse(resp)
	}
}

// FetchReviewComments lists all review comments on the pull request, paging
// through the API 100 at a time. Comment lists are never cached.
func (g *ReviewGateway) FetchReviewComments(ctx context.Context, locator PullRequestLocator) (CommentPage, error) {
	opts := &gogithub.PullRequestListCommentsOptions{
		ListOptions: gogithub.ListOptions{PerPage: maxCommentPageSize},
	}

	var comments []ReviewComment
	var rate RateLimit
	for {
		page, resp, err := g.github.PullRequests.ListComments(ctx, locator.Owner, locator.Repo, locator.Number, opts)
		if err != nil {
			var ghErr *gogithub.ErrorResponse
			if errors.As(err, &ghErr) {
				return CommentPage{}, &APIError{Status: ghErr.Response.StatusCode, Message: ghErr.Message}
			}
			return CommentPage{}, &NetworkError{Err: err}
		}
		for _, c := range page {
			comments = append(comments, reviewCommentFromAPI(c))
		}
		rate = RateLimit{
			Limit:     resp.Rate.Limit,
			Remaining: resp.Rate.Remaining,
			Reset:     resp.Rate.Reset.Time,
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return CommentPage{Comments: comments, RateLimit: rate}, nil
}

// reviewCommentFromAPI converts a go-github review comment into the domain
// type, flattening optional pointers.
func reviewCommentFromAPI(c *gogithub.PullRequestComment) ReviewComment {
	out := ReviewComment{
		ID:           uint64(c.GetID()),
		Body:         c.GetBody(),
		FilePath:     c.GetPath(),
		LineNumber:   c.GetLine(),
		OriginalLine: c.GetOriginalLine(),
		DiffHunk:     c.GetDiffHunk(),
		CommitSHA:    c.GetCommitID(),
		InReplyToID:  uint64(c.GetInReplyTo()),
		CreatedAt:    timestampString(c.CreatedAt),
		UpdatedAt:    timestampString(c.UpdatedAt),
	}
	if c.User != nil {
		out.Author = c.User.GetLogin()
	}
	return out
}

func timestampString(ts *gogithub.Timestamp) string {
	if ts == nil || ts.Time.IsZero() {
		return ""
	}
	return ts.Time.UTC().Format(time.RFC3339)
}

// decodeMetadata parses the GitHub pull request payload into the metadata
// the TUI needs.
func decodeMetadata(body []byte) (PullRequestMetadata, error) {
	var payload struct {
		Number  int    `json:"number"`
		Title   string `json:"title"`
		State   string `json:"state"`
		HTMLURL string `json:"html_url"`
		User    *struct {
			Login string `json:"login"`
		} `json:"user"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return PullRequestMetadata{}, &APIError{Message: "malformed pull request payload: " + err.Error()}
	}
	meta := PullRequestMetadata{
		Number:  payload.Number,
		Title:   payload.Title,
		State:   payload.State,
		HTMLURL: payload.HTMLURL,
	}
	if payload.User != nil {
		meta.Author = payload.User.Login
	}
	return meta, nil
}

// apiErrorFromResponse builds an APIError from a non-OK response, extracting
// the message field when the body is the standard GitHub error document.
func apiErrorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Message string `json:"message"`
	}
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		message = payload.Message
	}
	return &APIError{Status: resp.StatusCode, Message: message}
}
