package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/lysyi3m/rss-intake/app/rss"
)

// Parser turns an adapter's normalized feed into storable metadata and items.
type Parser struct {
	now func() time.Time
}

func NewParser() *Parser {
	return &Parser{now: time.Now}
}

// Run applies the subscription's custom rules and computes content hashes.
// Items without a publication date are stamped with the processing time.
func (p *Parser) Run(parsed *rss.ParsedFeed, adapter string, feedConfig *Config) (*Metadata, []Item) {
	metadata := &Metadata{
		Title:           parsed.Title,
		Link:            parsed.SiteURL,
		Description:     parsed.Description,
		ImageURL:        parsed.Image,
		Language:        parsed.Language,
		TTL:             parsed.TTL,
		Adapter:         adapter,
		FeedPublishedAt: parsed.LastBuildDate,
	}

	var rules []rss.CustomRule
	var feedURL string
	if feedConfig != nil {
		rules = feedConfig.Rules
		feedURL = feedConfig.URL
	}

	processedAt := p.now().UTC()
	items := make([]Item, 0, len(parsed.Items))
	stableSeen := map[string]int{}
	for _, parsedItem := range parsed.Items {
		item := p.normalizeItem(parsedItem, rules, processedAt)
		item.ContentHash = generateContentHash(item)
		if rss.IsSyntheticGUID(parsedItem, feedURL) {
			item.GUID = stableGUID(feedURL, parsedItem, stableSeen)
		}
		items = append(items, item)
	}

	return metadata, items
}

func (p *Parser) normalizeItem(parsed rss.ParsedItem, rules []rss.CustomRule, processedAt time.Time) Item {
	if len(rules) > 0 {
		parsed.Extra = maps.Clone(parsed.Extra)
		rss.ApplyRules(&parsed, rules)
	}

	item := Item{
		GUID:         parsed.GUID,
		Title:        parsed.Title,
		Link:         parsed.URL,
		Description:  parsed.Description,
		Content:      parsed.Content,
		PublishedAt:  processedAt,
		Author:       parsed.Author,
		AuthorURL:    parsed.AuthorURL,
		AuthorAvatar: parsed.AuthorAvatar,
		Categories:   parsed.Categories,
		Media:        parsed.Media,
		Attachments:  parsed.Attachments,
		Extra:        parsed.Extra,
	}

	if parsed.PublishedAt != nil {
		item.PublishedAt = parsed.PublishedAt.UTC()
	}

	return item
}

// stableGUID replaces a fetch-time id with one derived from the item body, so
// entries without id or link keep their identity across fetches and do not
// overwrite each other. Identical entries in one document get a counter suffix.
func stableGUID(feedURL string, item rss.ParsedItem, seen map[string]int) string {
	var published string
	if item.PublishedAt != nil {
		published = item.PublishedAt.UTC().Format(time.RFC3339)
	}
	hash := sha256.Sum256([]byte(strings.Join([]string{item.Title, item.Description, item.Content, published}, "|")))
	guid := feedURL + "#" + hex.EncodeToString(hash[:8])

	seen[guid]++
	if n := seen[guid]; n > 1 {
		guid = fmt.Sprintf("%s-%d", guid, n)
	}
	return guid
}

// generateContentHash identifies an item by title and link so the same entry
// republished under a new guid is recognized as a duplicate.
func generateContentHash(item Item) string {
	content := fmt.Sprintf("%s|%s", item.Title, item.Link)

	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}
