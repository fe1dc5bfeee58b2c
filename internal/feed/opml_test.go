package feed

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/trendbrief/internal/model"
)

const sampleOPML = `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <head><title>Subscriptions</title></head>
  <body>
    <outline text="Tech">
      <outline type="rss" text="Example Blog" xmlUrl="https://blog.example.com/rss"/>
      <outline type="rss" text="Account 42" xmlUrl="https://wechat2rss.test/feed/123456.xml"/>
    </outline>
    <outline type="rss" title="Titled Only" xmlUrl="https://titled.test/atom"/>
    <outline type="rss" text="Duplicate" xmlUrl="https://blog.example.com/rss"/>
    <outline type="link" text="Homepage" xmlUrl="https://home.test/"/>
    <outline type="rss" text="No URL"/>
  </body>
</opml>`

func TestParseOPML(t *testing.T) {
	sources, err := ParseOPML(strings.NewReader(sampleOPML))
	require.NoError(t, err)

	require.Len(t, sources, 3)
	assert.Equal(t, model.SourceConfig{ID: "feed-8c70359f", Name: "Example Blog", Kind: model.SourceKindRSS, URL: "https://blog.example.com/rss"}, sources[0])
	assert.Equal(t, "wx-123456", sources[1].ID)
	assert.Equal(t, "Account 42", sources[1].Name)
	assert.Equal(t, "Titled Only", sources[2].Name)
}

func TestParseOPML_Malformed(t *testing.T) {
	_, err := ParseOPML(strings.NewReader("<opml><body>"))
	assert.Error(t, err)
}

func TestOPMLSourceID(t *testing.T) {
	assert.Equal(t, "wx-987", OPMLSourceID("https://host.test/feed/987.xml"))
	assert.Equal(t, "feed-8c70359f", OPMLSourceID("https://blog.example.com/rss"))
}
