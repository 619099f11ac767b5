// Package update checks for a newer ajax release.
package update

import (
	"context"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/acto-dev/ajax/internal/api"
)

const (
	// DefaultGitHubReleasesURL is the default URL for checking releases.
	DefaultGitHubReleasesURL = "https://api.github.com/repos/acto-dev/ajax/releases/latest"
	CheckTimeout             = 5 * time.Second

	githubMediaType = "application/vnd.github.v3+json"
)

// GitHubReleasesURL is the URL to check for releases. Can be overridden in tests.
var GitHubReleasesURL = DefaultGitHubReleasesURL

type Release struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

type CheckResult struct {
	CurrentVersion  string `json:"current_version"`
	LatestVersion   string `json:"latest_version"`
	UpdateURL       string `json:"update_url,omitempty"`
	UpdateAvailable bool   `json:"update_available"`
}

// CheckForUpdate checks if a newer version is available, using client for
// the request. Returns nil if the check fails; it never blocks the CLI.
func CheckForUpdate(ctx context.Context, client *api.Client, currentVersion string) *CheckResult {
	if currentVersion == "dev" || currentVersion == "" || client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, CheckTimeout)
	defer cancel()

	release, err := api.Decode[Release](client.GetJSON(ctx, GitHubReleasesURL, api.WithAccept(githubMediaType)))
	if err != nil || release.TagName == "" {
		return nil
	}

	current := normalizeVersion(currentVersion)
	latest := normalizeVersion(release.TagName)

	result := &CheckResult{
		CurrentVersion: currentVersion,
		LatestVersion:  strings.TrimPrefix(release.TagName, "v"),
		UpdateURL:      release.HTMLURL,
	}

	if semver.IsValid(current) && semver.IsValid(latest) {
		result.UpdateAvailable = semver.Compare(latest, current) > 0
	}

	return result
}

func normalizeVersion(v string) string {
	if !strings.HasPrefix(v, "v") {
		return "v" + v
	}
	return v
}
