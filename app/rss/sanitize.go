package rss

import (
	"regexp"
	"strings"
)

const MaxDescriptionLength = 500

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	imgPattern        = regexp.MustCompile(`(?i)<img\s[^>]*?src=["']([^"']+)["'][^>]*>`)
	altPattern        = regexp.MustCompile(`(?i)\salt=["']([^"']*)["']`)
	anchorPattern     = regexp.MustCompile(`(?i)<a[^>]+href=["']([^"']+)["'][^>]*>([^<]*)</a>`)

	// Only the five most common entities are decoded; anything else is kept as-is.
	entityReplacer = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
	)
)

// StripHTML removes tags, decodes &nbsp; &amp; &lt; &gt; &quot;, collapses
// whitespace and trims the result.
func StripHTML(html string) string {
	if html == "" {
		return ""
	}
	text := tagPattern.ReplaceAllString(html, "")
	text = entityReplacer.Replace(text)
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// SanitizeText strips markup and truncates to MaxDescriptionLength characters.
// Empty input yields an empty string.
func SanitizeText(text string) string {
	if text == "" {
		return ""
	}
	stripped := StripHTML(text)
	runes := []rune(stripped)
	if len(runes) > MaxDescriptionLength {
		return string(runes[:MaxDescriptionLength])
	}
	return stripped
}

func ExtractImagesFromHTML(html string) []Image {
	images := []Image{}
	for _, match := range imgPattern.FindAllStringSubmatch(html, -1) {
		image := Image{URL: match[1]}
		if alt := altPattern.FindStringSubmatch(match[0]); alt != nil {
			image.Alt = alt[1]
		}
		images = append(images, image)
	}
	return images
}

func ExtractLinksFromHTML(html string) []Link {
	links := []Link{}
	for _, match := range anchorPattern.FindAllStringSubmatch(html, -1) {
		links = append(links, Link{URL: match[1], Title: match[2]})
	}
	return links
}

// stripHTMLLines is StripHTML that keeps block boundaries as newlines, so list
// items in release notes survive as separate "- " lines.
func stripHTMLLines(html string) string {
	text := blockBreakPattern.ReplaceAllString(html, "\n")
	text = listItemPattern.ReplaceAllString(text, "\n- ")
	text = tagPattern.ReplaceAllString(text, "")
	text = entityReplacer.Replace(text)

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(inlineSpacePattern.ReplaceAllString(line, " "))
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

var (
	blockBreakPattern  = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|li|ul|ol|h[1-6]|pre|blockquote)>`)
	listItemPattern    = regexp.MustCompile(`(?i)<li(\s[^>]*)?>`)
	inlineSpacePattern = regexp.MustCompile(`[ \t\r\f\v]+`)
)
