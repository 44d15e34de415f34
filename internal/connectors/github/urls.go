package github

import (
	"fmt"
	"strings"
)

var urlPrefixes = []string{
	"https://github.com/",
	"http://github.com/",
	"git@github.com:",
}

// IsValidGitHubURL reports whether url points at github.com over https,
// http or ssh.
func IsValidGitHubURL(url string) bool {
	for _, p := range urlPrefixes {
		if strings.HasPrefix(url, p) {
			return true
		}
	}
	return false
}

// ParseRepoURL extracts the owner and repository name from a GitHub URL.
// A trailing ".git", extra path segments, a query or a fragment are ignored.
func ParseRepoURL(url string) (owner, name string, err error) {
	var rest string
	for _, p := range urlPrefixes {
		if strings.HasPrefix(url, p) {
			rest = strings.TrimPrefix(url, p)
			break
		}
	}
	if rest == "" {
		return "", "", fmt.Errorf("not a GitHub repository URL: %q", url)
	}
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}

	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("GitHub URL missing owner or repository: %q", url)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}

// PagesURL is the default GitHub Pages address for a repository.
func PagesURL(owner, name string) string {
	return fmt.Sprintf("https://%s.github.io/%s/", strings.ToLower(owner), name)
}
