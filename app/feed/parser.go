package feed

import (
	"bytes"
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run parses RSS, Atom or JSON Feed data into items attributed to source.
// Entries without a link are dropped. fetchedAt stands in for entries that
// carry neither a published nor an updated date.
func (p *Parser) Run(data []byte, source Source, fetchedAt time.Time) (*Metadata, []Item, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	metadata := &Metadata{
		Title:       feed.Title,
		Link:        feed.Link,
		Description: feed.Description,
		Language:    feed.Language,
	}

	items := make([]Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if entry == nil || strings.TrimSpace(entry.Link) == "" {
			continue
		}
		items = append(items, p.normalizeItem(entry, source, fetchedAt))
	}

	return metadata, items, nil
}

func (p *Parser) normalizeItem(entry *gofeed.Item, source Source, fetchedAt time.Time) Item {
	link := strings.TrimSpace(entry.Link)
	publishedAt := p.publishedAt(entry, fetchedAt)

	return Item{
		ID:          p.generateFingerprint(cmp.Or(entry.GUID, link), link, entry.Title, publishedAt),
		Link:        link,
		Title:       StripMarkup(entry.Title),
		Description: Sanitize(cmp.Or(entry.Description, entry.Content), DescriptionLimit),
		PublishedAt: publishedAt,
		SourceName:  source.Name,
		Category:    source.Category,
		Author:      p.extractAuthor(entry),
	}
}

func (p *Parser) publishedAt(entry *gofeed.Item, fetchedAt time.Time) time.Time {
	switch {
	case entry.PublishedParsed != nil:
		return entry.PublishedParsed.UTC()
	case entry.UpdatedParsed != nil:
		return entry.UpdatedParsed.UTC()
	default:
		return fetchedAt.UTC()
	}
}

func (p *Parser) generateFingerprint(guid, link, title string, publishedAt time.Time) string {
	content := fmt.Sprintf("%s|%s|%s|%s",
		guid,
		link,
		title,
		publishedAt.Format(time.RFC3339))

	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

// extractAuthor returns the first author as "name", falling back to "email".
func (p *Parser) extractAuthor(entry *gofeed.Item) string {
	if len(entry.Authors) > 0 {
		for _, author := range entry.Authors {
			if author == nil {
				continue
			}
			if s := p.formatAuthor(author.Name, author.Email); s != "" {
				return s
			}
		}
	} else if entry.Author != nil {
		return p.formatAuthor(entry.Author.Name, entry.Author.Email)
	}

	return ""
}

func (p *Parser) formatAuthor(name, email string) string {
	return cmp.Or(strings.TrimSpace(name), strings.TrimSpace(email))
}
