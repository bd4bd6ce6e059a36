package feed

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/lysyi3m/rss-intake/app/cfg"
	"github.com/lysyi3m/rss-intake/app/database"
	"github.com/lysyi3m/rss-intake/app/rss"
)

// Generator renders stored items back out as an RSS 2.0 document.
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

func (g *Generator) Run(feed database.Feed, items []database.Item) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/" xmlns:atom="http://www.w3.org/2005/Atom" xmlns:media="http://search.yahoo.com/mrss/">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", cmp.Or(feed.Title, feed.Name), 4)
	g.writeElement(&buf, "link", feed.Link, 4)
	description := feed.Description
	if description == "" {
		description = fmt.Sprintf("Processed feed from %s", feed.FeedURL)
	}
	g.writeElement(&buf, "description", description, 4)

	fmt.Fprintf(&buf, "    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(selfLink(feed.Name)))

	if feed.FeedPublishedAt != nil {
		g.writeElement(&buf, "pubDate", feed.FeedPublishedAt.Format(time.RFC1123Z), 4)
	}

	lastBuildDate := time.Now().In(time.Local)
	if len(items) > 0 {
		lastBuildDate = cmp.Or(items[0].PublishedAt, items[0].CreatedAt, lastBuildDate)
	}

	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("RSS-Intake/%s", cfg.Get().Version), 4)
	g.writeElement(&buf, "language", feed.Language, 4)
	if feed.TTL != nil && *feed.TTL > 0 {
		g.writeElement(&buf, "ttl", fmt.Sprint(*feed.TTL), 4)
	}

	if feed.ImageURL != "" {
		buf.WriteString("    <image>\n")
		g.writeElement(&buf, "url", feed.ImageURL, 6)
		g.writeElement(&buf, "title", cmp.Or(feed.Title, feed.Name), 6)
		g.writeElement(&buf, "link", feed.Link, 6)
		buf.WriteString("    </image>\n")
	}

	for _, item := range items {
		g.writeItem(&buf, item)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func selfLink(feedName string) string {
	if baseURL := cfg.Get().BaseUrl; baseURL != "" {
		return fmt.Sprintf("%s/feeds/%s", strings.TrimSuffix(baseURL, "/"), feedName)
	}
	return fmt.Sprintf("http://localhost:%s/feeds/%s", cfg.Get().Port, feedName)
}

func (g *Generator) writeItem(buf *bytes.Buffer, item database.Item) {
	buf.WriteString("    <item>\n")

	if item.GUID != "" {
		fmt.Fprintf(buf, "      <guid isPermaLink=\"%t\">", isURL(item.GUID))
		xml.EscapeText(buf, []byte(item.GUID))
		buf.WriteString("</guid>\n")
	}

	g.writeElement(buf, "title", item.Title, 6)
	g.writeElement(buf, "link", item.Link, 6)
	g.writeElement(buf, "description", cmp.Or(item.Description, "No description available"), 6)

	if item.Content != "" && item.Content != item.Description {
		buf.WriteString("      <content:encoded><![CDATA[")
		buf.WriteString(strings.ReplaceAll(item.Content, "]]>", "]]]]><![CDATA[>"))
		buf.WriteString("]]></content:encoded>\n")
	}

	g.writeElement(buf, "pubDate", item.PublishedAt.Format(time.RFC1123Z), 6)
	g.writeElement(buf, "author", item.Author, 6)

	for _, category := range item.Categories {
		g.writeElement(buf, "category", category, 6)
	}

	// RSS 2.0 requires url, length and type on an enclosure
	if enclosure := item.Enclosure(); enclosure != nil && enclosure.MimeType != "" {
		var length int64
		if enclosure.Size != nil {
			length = *enclosure.Size
		}
		fmt.Fprintf(buf, "      <enclosure url=\"%s\" length=\"%d\" type=\"%s\" />\n",
			html.EscapeString(enclosure.URL),
			length,
			html.EscapeString(enclosure.MimeType))
	}

	for _, media := range item.Media {
		g.writeMedia(buf, media)
	}

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeMedia(buf *bytes.Buffer, media rss.MediaItem) {
	fmt.Fprintf(buf, "      <media:content url=\"%s\" medium=\"%s\"", html.EscapeString(media.URL), media.Type)
	if media.Width != nil {
		fmt.Fprintf(buf, " width=\"%d\"", *media.Width)
	}
	if media.Height != nil {
		fmt.Fprintf(buf, " height=\"%d\"", *media.Height)
	}
	if media.Duration != nil {
		fmt.Fprintf(buf, " duration=\"%d\"", *media.Duration)
	}
	buf.WriteString(" />\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	buf.WriteString(strings.Repeat(" ", indent))
	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
