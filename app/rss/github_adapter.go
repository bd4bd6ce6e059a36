package rss

import (
	"maps"
	"net/url"
	"regexp"
	"strings"

	"github.com/mmcdole/gofeed"
)

const githubUserAgent = "RSSIntake/1.0 (+https://github.com/lysyi3m/rss-intake; GitHub Feed Reader)"

type GitHubKind string

const (
	GitHubRelease  GitHubKind = "release"
	GitHubCommit   GitHubKind = "commit"
	GitHubTag      GitHubKind = "tag"
	GitHubActivity GitHubKind = "activity"
)

type ChangeType string

const (
	ChangeBreaking    ChangeType = "breaking"
	ChangeFeature     ChangeType = "feature"
	ChangeFix         ChangeType = "fix"
	ChangeDocs        ChangeType = "docs"
	ChangePerformance ChangeType = "performance"
	ChangeRefactor    ChangeType = "refactor"
	ChangeOther       ChangeType = "other"
)

type ChangelogEntry struct {
	Type ChangeType `json:"type"`
	Text string     `json:"text"`
}

var (
	githubUserPattern = regexp.MustCompile(`github\.com/([^/?#]+)`)
	versionPattern    = regexp.MustCompile(`(?i)v?(\d+\.\d+(?:\.\d+)?(?:-[\w.]+)?)`)
	commitPattern     = regexp.MustCompile(`(?i)Commit/([a-f0-9]+)`)
	bulletPattern     = regexp.MustCompile(`(?m)^[-*]\s+(\S.*)$`)
)

// changeRules are checked in order against the lowercased line. Breaking
// changes come first so "add breaking ..." is not reported as a feature.
var changeRules = []struct {
	changeType ChangeType
	prefixes   []string
	contains   []string
}{
	{ChangeBreaking, []string{"breaking"}, []string{"breaking"}},
	{ChangeFeature, []string{"feat"}, []string{"add", "new"}},
	{ChangeFix, []string{"fix"}, []string{"bug"}},
	{ChangeDocs, []string{"docs"}, []string{"document"}},
	{ChangePerformance, []string{"perf"}, []string{"performance"}},
	{ChangeRefactor, []string{"refactor"}, nil},
}

// GitHubAdapter understands GitHub release, commit and tag Atom feeds.
type GitHubAdapter struct {
	*BaseAdapter
}

func NewGitHubAdapter(config AdapterConfig, source Source) *GitHubAdapter {
	defaults := AdapterConfig{UserAgent: githubUserAgent}
	return &GitHubAdapter{
		BaseAdapter: NewBaseAdapter("GitHubAdapter", MergeConfig(defaults, config), source, enrichGitHubItem),
	}
}

func (a *GitHubAdapter) CanHandle(url string) bool {
	return strings.Contains(url, "github.com") &&
		(strings.Contains(url, "/releases") || strings.Contains(url, "/commits") || strings.HasSuffix(url, ".atom"))
}

func githubKind(feedURL string) GitHubKind {
	switch {
	case strings.Contains(feedURL, "/releases"):
		return GitHubRelease
	case strings.Contains(feedURL, "/commits"):
		return GitHubCommit
	case strings.Contains(feedURL, "/tags"):
		return GitHubTag
	default:
		return GitHubActivity
	}
}

func enrichGitHubItem(item *ParsedItem, raw *gofeed.Item, feedURL string) {
	kind := githubKind(feedURL)

	if match := githubUserPattern.FindStringSubmatch(raw.Link); match != nil {
		item.AuthorURL = "https://github.com/" + match[1]
		item.AuthorAvatar = "https://github.com/" + match[1] + ".png"
	}
	if uri := raw.Custom[customAuthorURI]; uri != "" {
		item.AuthorURL = uri
		if username := lastPathSegment(uri); username != "" {
			item.AuthorAvatar = "https://github.com/" + username + ".png"
		}
	}

	extra := map[string]any{"type": string(kind)}
	metadata := map[string]any{"type": string(kind)}

	if kind == GitHubRelease && raw.Title != "" {
		if match := versionPattern.FindStringSubmatch(raw.Title); match != nil {
			extra["version"] = match[1]
			metadata["version"] = match[1]
		}
	}

	if kind == GitHubCommit && raw.GUID != "" {
		if match := commitPattern.FindStringSubmatch(raw.GUID); match != nil {
			sha := match[1]
			shortSHA := sha[:min(7, len(sha))]
			extra["sha"] = sha
			extra["shortSha"] = shortSHA
			metadata["commitSha"] = sha
			metadata["shortSha"] = shortSHA
		}
	}

	if kind == GitHubRelease && item.Content != "" {
		if changelog := ParseChangelog(item.Content); len(changelog) > 0 {
			metadata["changelog"] = changelog
		}
	}

	if item.Extra == nil {
		item.Extra = map[string]any{}
	}
	maps.Copy(item.Extra, extra)

	if item.FormattedContent.Metadata == nil {
		item.FormattedContent.Metadata = map[string]any{}
	}
	maps.Copy(item.FormattedContent.Metadata, metadata)
}

// ParseChangelog collects "- " and "* " bullet lines from release notes and
// classifies each one.
func ParseChangelog(content string) []ChangelogEntry {
	changelog := []ChangelogEntry{}
	for _, match := range bulletPattern.FindAllStringSubmatch(stripHTMLLines(content), -1) {
		line := strings.TrimSpace(match[1])
		changelog = append(changelog, ChangelogEntry{Type: classifyChange(line), Text: line})
	}
	return changelog
}

func classifyChange(line string) ChangeType {
	lower := strings.ToLower(line)
	for _, rule := range changeRules {
		for _, prefix := range rule.prefixes {
			if strings.HasPrefix(lower, prefix) {
				return rule.changeType
			}
		}
		for _, fragment := range rule.contains {
			if strings.Contains(lower, fragment) {
				return rule.changeType
			}
		}
	}
	return ChangeOther
}

// lastPathSegment is empty for a bare host or a path ending in a slash.
func lastPathSegment(uri string) string {
	parsed, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return parsed.Path[strings.LastIndex(parsed.Path, "/")+1:]
}
