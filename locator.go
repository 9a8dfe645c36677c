package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// PullRequestLocator identifies a pull request by owner, repository, and
// number, together with the API base URL derived from the host. Values are
// validated at construction and never mutated afterwards.
type PullRequestLocator struct {
	Owner   string
	Repo    string
	Number  int
	APIBase string
}

// RepositoryLocator identifies a repository without a specific pull request,
// suitable for listing operations.
type RepositoryLocator struct {
	Owner   string
	Repo    string
	APIBase string
}

// apiBaseForHost derives the REST API root for a GitHub host. github.com maps
// to the public API; any other host is treated as GitHub Enterprise, which
// serves its API under /api/v3 on the same host (and port, when present).
func apiBaseForHost(host string) string {
	if strings.EqualFold(host, "github.com") {
		return "https://api.github.com"
	}
	return "https://" + host + "/api/v3"
}

// ParsePullRequestURL extracts the owner, repo, and number from a GitHub PR
// URL. Works with github.com and self-hosted GitHub Enterprise instances.
// Expected path form: /{owner}/{repo}/pull/{number}
func ParsePullRequestURL(rawURL string) (PullRequestLocator, error) {
	cleaned := stripURLDecorations(rawURL)
	u, err := url.Parse(cleaned)
	if err != nil || u.Host == "" || u.Scheme == "" {
		return PullRequestLocator{}, fmt.Errorf("invalid PR URL %q: must be a valid URL", rawURL)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 4 || parts[2] != "pull" || parts[0] == "" || parts[1] == "" || parts[3] == "" {
		return PullRequestLocator{}, fmt.Errorf("invalid PR URL %q: expected .../{owner}/{repo}/pull/{number}", rawURL)
	}

	number, err := strconv.Atoi(parts[3])
	if err != nil || number <= 0 {
		return PullRequestLocator{}, fmt.Errorf("invalid PR URL %q: PR number must be a positive integer", rawURL)
	}

	return PullRequestLocator{
		Owner:   parts[0],
		Repo:    parts[1],
		Number:  number,
		APIBase: apiBaseForHost(u.Host),
	}, nil
}

// NewRepositoryLocator builds a repository locator from owner and repository
// name strings, defaulting to the public github.com API base.
func NewRepositoryLocator(owner, repo string) (RepositoryLocator, error) {
	if owner == "" || repo == "" {
		return RepositoryLocator{}, fmt.Errorf("repository locator requires owner and repo (got %q/%q)", owner, repo)
	}
	return RepositoryLocator{Owner: owner, Repo: repo, APIBase: apiBaseForHost("github.com")}, nil
}

// LocatorFromOrigin builds a pull request locator from a discovered GitHub
// origin plus a PR number, preserving the Enterprise host (and port) when the
// origin is not github.com.
func LocatorFromOrigin(origin GitHubOrigin, number int) (PullRequestLocator, error) {
	if origin.Owner == "" || origin.Repo == "" {
		return PullRequestLocator{}, fmt.Errorf("origin is missing owner or repository")
	}
	if number <= 0 {
		return PullRequestLocator{}, fmt.Errorf("PR number must be a positive integer (got %d)", number)
	}
	return PullRequestLocator{
		Owner:   origin.Owner,
		Repo:    origin.Repo,
		Number:  number,
		APIBase: apiBaseForHost(origin.Host),
	}, nil
}

// HTMLURL reconstructs the browser URL for the pull request.
func (l PullRequestLocator) HTMLURL() string {
	host := "github.com"
	if l.APIBase != "https://api.github.com" {
		host = strings.TrimSuffix(strings.TrimPrefix(l.APIBase, "https://"), "/api/v3")
	}
	return fmt.Sprintf("https://%s/%s/%s/pull/%d", host, l.Owner, l.Repo, l.Number)
}

// Host returns the web host for the locator, used in clone instructions.
func (l PullRequestLocator) Host() string {
	if l.APIBase == "https://api.github.com" {
		return "github.com"
	}
	return strings.TrimSuffix(strings.TrimPrefix(l.APIBase, "https://"), "/api/v3")
}

// stripURLDecorations removes a trailing slash, query string, and fragment.
func stripURLDecorations(rawURL string) string {
	if idx := strings.IndexByte(rawURL, '?'); idx != -1 {
		rawURL = rawURL[:idx]
	}
	if idx := strings.IndexByte(rawURL, '#'); idx != -1 {
		rawURL = rawURL[:idx]
	}
	return strings.TrimRight(rawURL, "/")
}
