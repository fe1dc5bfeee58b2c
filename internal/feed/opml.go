package feed

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/ppiankov/trendbrief/internal/model"
)

// wechatFeedPath matches WeChat2RSS feed URLs, which carry a stable numeric account id
var wechatFeedPath = regexp.MustCompile(`/feed/(\d+)\.xml`)

type opmlOutline struct {
	Type     string        `xml:"type,attr"`
	Text     string        `xml:"text,attr"`
	Title    string        `xml:"title,attr"`
	XMLURL   string        `xml:"xmlUrl,attr"`
	Outlines []opmlOutline `xml:"outline"`
}

type opmlDocument struct {
	Body struct {
		Outlines []opmlOutline `xml:"outline"`
	} `xml:"body"`
}

// ParseOPML converts an OPML subscription list into rss sources.
// Nested folders are flattened; entries without a feed URL are skipped.
func ParseOPML(r io.Reader) ([]model.SourceConfig, error) {
	var doc opmlDocument
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse opml: %w", err)
	}

	var (
		out  []model.SourceConfig
		seen = make(map[string]bool)
		walk func([]opmlOutline)
	)
	walk = func(outlines []opmlOutline) {
		for _, o := range outlines {
			if o.XMLURL != "" && (o.Type == "" || strings.EqualFold(o.Type, "rss")) {
				id := OPMLSourceID(o.XMLURL)
				if !seen[id] {
					seen[id] = true
					name := o.Text
					if name == "" {
						name = o.Title
					}
					out = append(out, model.SourceConfig{ID: id, Name: name, Kind: model.SourceKindRSS, URL: o.XMLURL})
				}
			}
			walk(o.Outlines)
		}
	}
	walk(doc.Body.Outlines)
	return out, nil
}

// OPMLSourceID derives a source id from a feed URL: wx-<n> for WeChat2RSS feeds,
// otherwise feed- plus the first 8 hex digits of the URL's MD5.
func OPMLSourceID(feedURL string) string {
	if m := wechatFeedPath.FindStringSubmatch(feedURL); m != nil {
		return "wx-" + m[1]
	}
	sum := md5.Sum([]byte(feedURL))
	return "feed-" + hex.EncodeToString(sum[:])[:8]
}
