package runbook

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// githubBlobPattern matches a GitHub blob URL: /{owner}/{repo}/blob/{ref}/{path...}.
var githubBlobPattern = regexp.MustCompile(`^/([^/]+)/([^/]+)/blob/([^/]+)/(.+)$`)

// normalizeGitHubURL rewrites a github.com blob URL into its
// raw.githubusercontent.com equivalent, so the cache key and the fetch both
// address the actual file content rather than GitHub's HTML wrapper page.
// Any URL that isn't a recognized github.com blob link passes through
// unchanged (plain raw URLs and non-GitHub hosts alike).
func normalizeGitHubURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if parsed.Host != "github.com" && parsed.Host != "www.github.com" {
		return rawURL
	}

	m := githubBlobPattern.FindStringSubmatch(parsed.Path)
	if m == nil {
		return rawURL
	}
	owner, repo, ref, path := m[1], m[2], m[3], m[4]
	return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s/%s", owner, repo, ref, path)
}

// validateURL rejects anything but http(s) and, when allowedHosts is
// non-empty, anything outside that allowlist — runbook URLs arrive from
// alert annotations, an untrusted-ish source, so this is the boundary that
// stops a malicious annotation from turning the Selector into an open
// fetch-any-URL proxy.
func validateURL(rawURL string, allowedHosts []string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("runbook: malformed url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("runbook: scheme %q not allowed", parsed.Scheme)
	}
	if len(allowedHosts) == 0 {
		return nil
	}

	host := strings.ToLower(parsed.Hostname())
	for _, h := range allowedHosts {
		if host == h || host == "www."+h {
			return nil
		}
	}
	return fmt.Errorf("runbook: host %q not in allowed list", host)
}
