package rss

import (
	"maps"
	"time"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "RSSIntake/1.0 (+https://github.com/lysyi3m/rss-intake)"
)

type AdapterConfig struct {
	Timeout     time.Duration     `yaml:"timeout"`
	UserAgent   string            `yaml:"user_agent"`
	Headers     map[string]string `yaml:"headers"`
	CustomRules []CustomRule      `yaml:"rules"`
}

// CustomRule pulls a value out of an item's HTML body with a CSS selector and
// stores it in the item's Extra under Name. Without Attribute the element text
// is used.
type CustomRule struct {
	Name      string              `yaml:"name"`
	Selector  string              `yaml:"selector"`
	Attribute string              `yaml:"attribute"`
	Transform func(string) string `yaml:"-"`
}

// MergeConfig layers caller-supplied values over defaults. Any non-zero caller
// field wins; headers merge per key with the caller's keys winning.
func MergeConfig(defaults, caller AdapterConfig) AdapterConfig {
	merged := defaults
	if merged.Timeout == 0 {
		merged.Timeout = DefaultTimeout
	}
	if merged.UserAgent == "" {
		merged.UserAgent = DefaultUserAgent
	}

	if caller.Timeout > 0 {
		merged.Timeout = caller.Timeout
	}
	if caller.UserAgent != "" {
		merged.UserAgent = caller.UserAgent
	}

	headers := make(map[string]string, len(defaults.Headers)+len(caller.Headers))
	maps.Copy(headers, defaults.Headers)
	maps.Copy(headers, caller.Headers)
	merged.Headers = headers

	if len(caller.CustomRules) > 0 {
		merged.CustomRules = caller.CustomRules
	}
	return merged
}

func (c AdapterConfig) fetchOptions() FetchOptions {
	headers := make(map[string]string, len(c.Headers)+1)
	headers["User-Agent"] = c.UserAgent
	maps.Copy(headers, c.Headers)
	return FetchOptions{
		Timeout: c.Timeout,
		Headers: headers,
	}
}
