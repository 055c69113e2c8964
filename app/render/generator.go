package render

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/lysyi3m/rss-digest/app/feed"
)

// FeedFile is the RSS 2.0 rendition of the latest digest.
const FeedFile = "feed.xml"

// Generator writes the selected items back out as an RSS 2.0 channel so the
// digest can itself be subscribed to.
type Generator struct {
	version string
}

func NewGenerator(version string) *Generator {
	return &Generator{version: cmp.Or(version, "dev")}
}

func (g *Generator) Run(d Digest, generatedAt time.Time) []byte {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", d.Newsletter.Title, 4)
	g.writeElement(&buf, "link", d.Newsletter.Link, 4)
	g.writeElement(&buf, "description", cmp.Or(d.Newsletter.Description, d.Newsletter.Title), 4)

	if d.Newsletter.Link != "" {
		selfLink := strings.TrimSuffix(d.Newsletter.Link, "/") + "/" + FeedFile
		buf.WriteString("    <atom:link href=\"")
		xml.EscapeText(&buf, []byte(selfLink))
		buf.WriteString("\" rel=\"self\" type=\"application/rss+xml\" />\n")
	}

	g.writeElement(&buf, "lastBuildDate", generatedAt.In(time.Local).Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("RSS-Digest/%s", g.version), 4)
	g.writeElement(&buf, "managingEditor", d.Newsletter.Author, 4)

	for _, item := range d.Items {
		g.writeItem(&buf, item)
	}

	buf.WriteString("  </channel>\n</rss>\n")

	return buf.Bytes()
}

func (g *Generator) writeItem(buf *bytes.Buffer, item feed.Item) {
	buf.WriteString("    <item>\n")

	buf.WriteString("      <guid isPermaLink=\"true\">")
	xml.EscapeText(buf, []byte(item.Link))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", cmp.Or(item.Title, item.Link), 6)
	g.writeElement(buf, "link", item.Link, 6)
	g.writeElement(buf, "description", cmp.Or(item.Description, "No description available"), 6)
	g.writeElement(buf, "pubDate", item.PublishedAt.Format(time.RFC1123Z), 6)
	g.writeElement(buf, "author", item.Author, 6)
	g.writeElement(buf, "category", item.Category, 6)

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}
