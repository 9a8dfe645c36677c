package main

import (
	"strings"
	"testing"
)

func TestParsePullRequestURL_PublicHost(t *testing.T) {
	locator, err := ParsePullRequestURL("https://github.com/octo/repo/pull/42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if locator.Owner != "octo" || locator.Repo != "repo" || locator.Number != 42 {
		t.Errorf("unexpected locator: %+v", locator)
	}
	if locator.APIBase != "https://api.github.com" {
		t.Errorf("public host should use the canonical API root, got %s", locator.APIBase)
	}
}

func TestParsePullRequestURL_Enterprise(t *testing.T) {
	locator, err := ParsePullRequestURL("https://ghe.corp.example/team/service/pull/7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if locator.APIBase != "https://ghe.corp.example/api/v3" {
		t.Errorf("enterprise host should derive /api/v3 base, got %s", locator.APIBase)
	}
}

func TestParsePullRequestURL_EnterpriseWithPort(t *testing.T) {
	locator, err := ParsePullRequestURL("https://ghe.corp.example:8443/team/service/pull/7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if locator.APIBase != "https://ghe.corp.example:8443/api/v3" {
		t.Errorf("port should be preserved in the API base, got %s", locator.APIBase)
	}
}

func TestParsePullRequestURL_RoundTrip(t *testing.T) {
	inputs := []string{
		"https://github.com/octo/repo/pull/42",
		"https://ghe.corp.example/team/service/pull/7",
	}
	for _, input := range inputs {
		locator, err := ParsePullRequestURL(input)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if locator.HTMLURL() != input {
			t.Errorf("round trip mismatch: %q != %q", locator.HTMLURL(), input)
		}
	}
}

func TestParsePullRequestURL_StripsDecorations(t *testing.T) {
	locator, err := ParsePullRequestURL("https://github.com/octo/repo/pull/42/?tab=files#diff")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if locator.Number != 42 {
		t.Errorf("expected number 42, got %d", locator.Number)
	}
}

func TestParsePullRequestURL_Invalid(t *testing.T) {
	cases := []struct {
		name string
		url  string
		want string
	}{
		{"not a url", "not-a-url", "valid URL"},
		{"missing segments", "https://github.com/octo/pull/42", "expected"},
		{"wrong marker", "https://github.com/octo/repo/issues/42", "expected"},
		{"zero number", "https://github.com/octo/repo/pull/0", "positive integer"},
		{"negative number", "https://github.com/octo/repo/pull/-3", "positive integer"},
		{"non-numeric", "https://github.com/octo/repo/pull/abc", "positive integer"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePullRequestURL(tc.url)
			if err == nil {
				t.Fatalf("expected error for %q", tc.url)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q should mention %q", err.Error(), tc.want)
			}
		})
	}
}

func TestLocatorFromOrigin(t *testing.T) {
	origin := GitHubOrigin{Host: "ghe.corp.example", Owner: "team", Repo: "service"}
	locator, err := LocatorFromOrigin(origin, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if locator.APIBase != "https://ghe.corp.example/api/v3" {
		t.Errorf("unexpected api base %s", locator.APIBase)
	}
	if locator.Host() != "ghe.corp.example" {
		t.Errorf("unexpected host %s", locator.Host())
	}

	if _, err := LocatorFromOrigin(origin, 0); err == nil {
		t.Error("zero PR number should be rejected")
	}
	if _, err := LocatorFromOrigin(GitHubOrigin{}, 1); err == nil {
		t.Error("empty origin should be rejected")
	}
}
