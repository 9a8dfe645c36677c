package main

import (
	"net/url"
	"strings"

	git "github.com/go-git/go-git/v5"
)

// defaultRemoteName is the remote consulted when discovering the origin.
const defaultRemoteName = "origin"

// GitHubOrigin is the parsed owner/repository of a GitHub remote,
// distinguishing github.com from Enterprise hosts.
type GitHubOrigin struct {
	Host  string
	Owner string
	Repo  string
}

// IsGitHubCom reports whether the origin points at the public host.
func (o GitHubOrigin) IsGitHubCom() bool {
	return strings.EqualFold(o.Host, "github.com")
}

// LocalRepository is a discovered local checkout with its GitHub origin.
type LocalRepository struct {
	WorkDir    string
	Origin     GitHubOrigin
	RemoteName string
	HeadSHA    string
}

// DiscoverRepository finds the Git repository containing startPath, parses
// its origin remote as a GitHub origin, and resolves the HEAD commit.
func DiscoverRepository(startPath string) (*LocalRepository, error) {
	return discoverRepositoryWithRemote(startPath, defaultRemoteName)
}

func discoverRepositoryWithRemote(startPath, remoteName string) (*LocalRepository, error) {
	repo, err := git.PlainOpenWithOptions(startPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, &DiscoveryError{Kind: DiscoveryNotARepository}
	}

	remotes, err := repo.Remotes()
	if err != nil || len(remotes) == 0 {
		return nil, &DiscoveryError{Kind: DiscoveryNoRemotes}
	}

	remote, err := repo.Remote(remoteName)
	if err != nil {
		return nil, &DiscoveryError{Kind: DiscoveryRemoteNotFound, Detail: remoteName}
	}

	urls := remote.Config().URLs
	if len(urls) == 0 {
		return nil, &DiscoveryError{Kind: DiscoveryRemoteNotFound, Detail: remoteName}
	}

	origin, err := ParseGitHubRemote(urls[0])
	if err != nil {
		return nil, err
	}

	workDir := startPath
	if wt, err := repo.Worktree(); err == nil {
		workDir = wt.Filesystem.Root()
	}

	local := &LocalRepository{WorkDir: workDir, Origin: origin, RemoteName: remoteName}
	if head, err := repo.Head(); err == nil {
		if commit, err := repo.CommitObject(head.Hash()); err == nil {
			local.HeadSHA = commit.Hash.String()
		}
	}
	return local, nil
}

// ParseGitHubRemote parses a Git remote URL and extracts the GitHub origin.
//
// Supported formats:
//   - SSH (SCP style):     git@github.com:owner/repo.git
//   - SSH with protocol:   ssh://git@github.com/owner/repo.git
//   - HTTPS:               https://github.com/owner/repo[.git]
//
// The .git suffix is optional and stripped when present.
func ParseGitHubRemote(rawURL string) (GitHubOrigin, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return GitHubOrigin{}, &DiscoveryError{Kind: DiscoveryInvalidRemoteURL, Detail: rawURL}
	}

	if origin, ok := parseSCPStyleRemote(trimmed); ok {
		return origin, nil
	}
	if origin, ok := parseURLStyleRemote(trimmed); ok {
		return origin, nil
	}
	return GitHubOrigin{}, &DiscoveryError{Kind: DiscoveryInvalidRemoteURL, Detail: rawURL}
}

// parseSCPStyleRemote handles git@host:owner/repo.git.
func parseSCPStyleRemote(raw string) (GitHubOrigin, bool) {
	atPos := strings.IndexByte(raw, '@')
	colonPos := strings.IndexByte(raw, ':')
	if atPos == -1 || colonPos == -1 || colonPos <= atPos {
		return GitHubOrigin{}, false
	}
	// A :// marks a URL-style remote, not SCP style.
	if strings.HasPrefix(raw[colonPos:], "://") {
		return GitHubOrigin{}, false
	}

	host := raw[atPos+1 : colonPos]
	path := raw[colonPos+1:]
	return originFromHostPath(host, path)
}

// parseURLStyleRemote handles https://, ssh://, and git:// remotes.
func parseURLStyleRemote(raw string) (GitHubOrigin, bool) {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return GitHubOrigin{}, false
	}
	return originFromHostPath(parsed.Hostname(), strings.TrimPrefix(parsed.Path, "/"))
}

// originFromHostPath extracts owner and repository from a path like
// "owner/repo.git", rejecting extra path segments.
func originFromHostPath(host, rawPath string) (GitHubOrigin, bool) {
	trimmed := strings.Trim(rawPath, "/")
	if host == "" || trimmed == "" {
		return GitHubOrigin{}, false
	}

	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return GitHubOrigin{}, false
	}

	repo := strings.TrimSuffix(parts[1], ".git")
	if repo == "" {
		return GitHubOrigin{}, false
	}

	normalisedHost := host
	if strings.EqualFold(host, "github.com") {
		normalisedHost = "github.com"
	}
	return GitHubOrigin{Host: normalisedHost, Owner: parts[0], Repo: repo}, true
}
