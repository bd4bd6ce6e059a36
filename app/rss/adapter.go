package rss

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

// ItemEnricher layers source-specific data on top of an already normalized item.
type ItemEnricher func(item *ParsedItem, raw *gofeed.Item, feedURL string)

// BaseAdapter fetches a feed through a Source and normalizes it. Specialized
// adapters embed it, add CanHandle and pass an ItemEnricher; the base
// normalization always runs first.
type BaseAdapter struct {
	name   string
	config AdapterConfig
	source Source
	enrich ItemEnricher
	now    func() time.Time
}

// NewBaseAdapter expects a config already passed through MergeConfig. A nil
// source falls back to a plain HTTPSource.
func NewBaseAdapter(name string, config AdapterConfig, source Source, enrich ItemEnricher) *BaseAdapter {
	if source == nil {
		source = NewHTTPSource()
	}
	return &BaseAdapter{
		name:   name,
		config: config,
		source: source,
		enrich: enrich,
		now:    time.Now,
	}
}

func (a *BaseAdapter) Name() string {
	return a.name
}

func (a *BaseAdapter) Config() AdapterConfig {
	return a.config
}

func (a *BaseAdapter) Fetch(ctx context.Context, url string) Result {
	slog.Debug("Fetching feed", "adapter", a.name, "url", url)

	raw, err := a.source.Fetch(ctx, url, a.config.fetchOptions())
	if err != nil {
		slog.Error("Failed to fetch feed", "adapter", a.name, "url", url, "error", err)
		return failure(err)
	}

	feed := a.ParseFeed(raw, url)
	slog.Info("Feed fetched", "adapter", a.name, "url", url, "items", len(feed.Items))

	return Result{Success: true, Data: feed}
}

func failure(err error) Result {
	result := Result{Error: cmp.Or(err.Error(), "Unknown error")}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		result.StatusCode = httpErr.StatusCode
	}
	return result
}

func (a *BaseAdapter) ParseFeed(raw *gofeed.Feed, feedURL string) *ParsedFeed {
	items := make([]ParsedItem, 0, len(raw.Items))
	for _, item := range raw.Items {
		if item == nil {
			continue
		}
		items = append(items, a.ParseItem(item, feedURL))
	}

	return &ParsedFeed{
		Title:         raw.Title,
		Description:   raw.Description,
		SiteURL:       cmp.Or(raw.Link, origin(feedURL)),
		Image:         feedImage(raw),
		Language:      raw.Language,
		LastBuildDate: raw.UpdatedParsed,
		TTL:           parseInt(raw.Custom[customTTL]),
		Items:         items,
	}
}

func (a *BaseAdapter) ParseItem(raw *gofeed.Item, feedURL string) ParsedItem {
	content := itemContent(raw)

	item := ParsedItem{
		GUID:             a.itemGUID(raw, feedURL),
		Title:            raw.Title,
		URL:              raw.Link,
		Description:      SanitizeText(raw.Description),
		Content:          content,
		Author:           itemAuthor(raw),
		PublishedAt:      cmp.Or(raw.PublishedParsed, raw.UpdatedParsed),
		Categories:       categories(raw.Categories),
		Media:            extractMedia(raw),
		Attachments:      extractAttachments(raw),
		FormattedContent: FormatContent(content),
		Extra:            extractExtra(raw),
	}

	ApplyRules(&item, a.config.CustomRules)

	if a.enrich != nil {
		a.enrich(&item, raw, feedURL)
	}

	return item
}

// itemGUID prefers the source id, then the link. The last-resort synthetic id
// embeds the fetch time and is therefore different on every fetch.
func (a *BaseAdapter) itemGUID(raw *gofeed.Item, feedURL string) string {
	if guid := cmp.Or(raw.GUID, raw.Link); guid != "" {
		return guid
	}
	return fmt.Sprintf("%s-%d", feedURL, a.now().UnixMilli())
}

// IsSyntheticGUID reports whether item carries the fetch-time id generated for
// entries of feedURL that had neither an id nor a link. Such ids are shared by
// every entry parsed in the same millisecond.
func IsSyntheticGUID(item ParsedItem, feedURL string) bool {
	if item.URL != "" || feedURL == "" {
		return false
	}
	stamp, ok := strings.CutPrefix(item.GUID, feedURL+"-")
	if !ok || stamp == "" {
		return false
	}
	_, err := strconv.ParseInt(stamp, 10, 64)
	return err == nil
}

// ApplyRules evaluates each rule against the item's HTML body and stores the
// non-empty results in Extra. Rules without a name or selector are skipped.
func ApplyRules(item *ParsedItem, rules []CustomRule) {
	if len(rules) == 0 || item.Content == "" {
		return
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(item.Content))
	if err != nil {
		slog.Debug("Skipping custom rules, content is not parseable", "guid", item.GUID, "error", err)
		return
	}

	if item.Extra == nil {
		item.Extra = map[string]any{}
	}

	for _, rule := range rules {
		if rule.Name == "" || rule.Selector == "" {
			continue
		}

		selection := doc.Find(rule.Selector).First()
		if selection.Length() == 0 {
			continue
		}

		value := strings.TrimSpace(selection.Text())
		if rule.Attribute != "" {
			attr, ok := selection.Attr(rule.Attribute)
			if !ok {
				continue
			}
			value = attr
		}
		if rule.Transform != nil {
			value = rule.Transform(value)
		}
		if value != "" {
			item.Extra[rule.Name] = value
		}
	}
}

// FormatContent is the default rich-display rendering of an item body.
func FormatContent(content string) FormattedContent {
	return FormattedContent{
		HTML:   content,
		Text:   StripHTML(content),
		Images: ExtractImagesFromHTML(content),
		Links:  ExtractLinksFromHTML(content),
	}
}

func itemContent(raw *gofeed.Item) string {
	if encoded := extensionValue(raw.Extensions, "content", "encoded"); encoded != "" {
		return encoded
	}
	return cmp.Or(raw.Content, raw.Description)
}

func itemAuthor(raw *gofeed.Item) string {
	if raw.Author != nil {
		if author := cmp.Or(raw.Author.Name, raw.Author.Email); author != "" {
			return author
		}
	}
	for _, person := range raw.Authors {
		if person == nil {
			continue
		}
		if author := cmp.Or(person.Name, person.Email); author != "" {
			return author
		}
	}
	if raw.DublinCoreExt != nil && len(raw.DublinCoreExt.Creator) > 0 {
		return raw.DublinCoreExt.Creator[0]
	}
	return ""
}

func categories(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func feedImage(raw *gofeed.Feed) string {
	if raw.Image != nil && raw.Image.URL != "" {
		return raw.Image.URL
	}
	if image := raw.Custom["image"]; image != "" {
		return image
	}
	if raw.ITunesExt != nil && raw.ITunesExt.Image != "" {
		return raw.ITunesExt.Image
	}
	return ""
}

func origin(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return rawURL
	}
	return parsed.Scheme + "://" + parsed.Host
}

func extractMedia(raw *gofeed.Item) []MediaItem {
	media := []MediaItem{}

	namespace := raw.Extensions["media"]
	if namespace == nil {
		return media
	}

	contents := slices.Clone(namespace["content"])
	thumbnails := slices.Clone(namespace["thumbnail"])
	for _, group := range namespace["group"] {
		contents = append(contents, group.Children["content"]...)
		thumbnails = append(thumbnails, group.Children["thumbnail"]...)
	}

	for _, content := range contents {
		if content.Attrs["url"] == "" {
			continue
		}
		media = append(media, MediaItem{
			URL:      content.Attrs["url"],
			Type:     mediaType(cmp.Or(content.Attrs["type"], content.Attrs["medium"])),
			Width:    parseInt(content.Attrs["width"]),
			Height:   parseInt(content.Attrs["height"]),
			Duration: parseInt(content.Attrs["duration"]),
		})
	}

	for _, thumbnail := range thumbnails {
		if thumbnail.Attrs["url"] == "" {
			continue
		}
		media = append(media, MediaItem{
			URL:    thumbnail.Attrs["url"],
			Type:   MediaImage,
			Width:  parseInt(thumbnail.Attrs["width"]),
			Height: parseInt(thumbnail.Attrs["height"]),
		})
	}

	return media
}

func mediaType(hint string) MediaType {
	hint = strings.ToLower(hint)
	switch {
	case strings.Contains(hint, "video"):
		return MediaVideo
	case strings.Contains(hint, "audio"):
		return MediaAudio
	default:
		return MediaImage
	}
}

func extractAttachments(raw *gofeed.Item) []Attachment {
	attachments := []Attachment{}
	for _, enclosure := range raw.Enclosures {
		if enclosure == nil || enclosure.URL == "" {
			continue
		}
		attachment := Attachment{
			URL:      enclosure.URL,
			MimeType: enclosure.Type,
		}
		if length, err := strconv.ParseInt(enclosure.Length, 10, 64); err == nil && length > 0 {
			attachment.Size = &length
		}
		attachments = append(attachments, attachment)
	}
	return attachments
}

// knownItemFields are already mapped onto ParsedItem and stay out of Extra.
var knownItemFields = map[string]bool{
	"title":       true,
	"link":        true,
	"links":       true,
	"description": true,
	"content":     true,
	"published":   true,
	"updated":     true,
	"guid":        true,
	"id":          true,
	"creator":     true,
	"author":      true,
	"authors":     true,
	"categories":  true,
	"media":       true,
	"enclosures":  true,
}

func extractExtra(raw *gofeed.Item) map[string]any {
	extra := map[string]any{}
	for key, value := range itemFields(raw) {
		if knownItemFields[key] || isEmptyValue(value) {
			continue
		}
		extra[key] = value
	}
	return extra
}

// itemFields flattens a gofeed item into named raw fields: typed fields first,
// then extension namespaces and custom elements that don't collide with them.
func itemFields(raw *gofeed.Item) map[string]any {
	fields := map[string]any{
		"title":       raw.Title,
		"link":        raw.Link,
		"links":       raw.Links,
		"description": raw.Description,
		"content":     raw.Content,
		"published":   raw.Published,
		"updated":     raw.Updated,
		"guid":        raw.GUID,
		"categories":  raw.Categories,
		"enclosures":  raw.Enclosures,
	}
	if raw.Author != nil {
		fields["author"] = raw.Author
	}
	if len(raw.Authors) > 0 {
		fields["authors"] = raw.Authors
	}
	if raw.Image != nil {
		fields["image"] = raw.Image
	}
	if raw.ITunesExt != nil {
		fields["itunes"] = raw.ITunesExt
	}
	if raw.DublinCoreExt != nil {
		fields["dc"] = raw.DublinCoreExt
	}
	for prefix, namespace := range raw.Extensions {
		if _, taken := fields[prefix]; !taken {
			fields[prefix] = namespace
		}
	}
	for key, value := range raw.Custom {
		if _, taken := fields[key]; !taken {
			fields[key] = value
		}
	}
	return fields
}

func isEmptyValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []string:
		return len(v) == 0
	case []*gofeed.Enclosure:
		return len(v) == 0
	case map[string][]ext.Extension:
		return len(v) == 0
	default:
		return false
	}
}

func extensionValue(extensions ext.Extensions, prefix, name string) string {
	for _, extension := range extensions[prefix][name] {
		if value := strings.TrimSpace(extension.Value); value != "" {
			return extension.Value
		}
	}
	return ""
}

func parseInt(value string) *int {
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return nil
	}
	return &n
}
