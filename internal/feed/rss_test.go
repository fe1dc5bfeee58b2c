package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/trendbrief/internal/model"
)

const rss2Sample = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Example</title>
  <item>
    <title>Open source AI model released</title>
    <link>https://example.com/a</link>
    <pubDate>Mon, 02 Jan 2006 15:04:05 +0000</pubDate>
    <description>&lt;p&gt;Details &amp;amp; more&lt;/p&gt;</description>
  </item>
  <item>
    <title></title>
    <link>https://example.com/empty</link>
  </item>
  <item>
    <title>Guid only</title>
    <guid>https://example.com/b</guid>
  </item>
</channel>
</rss>`

const atomSample = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom example</title>
  <entry>
    <title type="html">Chip &amp;amp; AI news</title>
    <link rel="self" href="https://example.com/self"/>
    <link rel="alternate" href="https://example.com/post"/>
    <id>urn:1</id>
    <updated>2024-05-01T10:00:00Z</updated>
  </entry>
</feed>`

func TestParseFeed_RSS2(t *testing.T) {
	items, err := parseFeed([]byte(rss2Sample))
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Open source AI model released", items[0].Title)
	assert.Equal(t, "https://example.com/a", items[0].URL)
	assert.Equal(t, time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC), items[0].PublishedAt)
	assert.Equal(t, "Details & more", items[0].Summary)
	assert.Equal(t, 1, items[0].Rank)

	assert.Equal(t, "https://example.com/b", items[1].URL)
	assert.Equal(t, 2, items[1].Rank)
}

func TestParseFeed_Atom(t *testing.T) {
	items, err := parseFeed([]byte(atomSample))
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, "Chip & AI news", items[0].Title)
	assert.Equal(t, "https://example.com/post", items[0].URL)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), items[0].PublishedAt)
}

func TestParseFeed_Latin1(t *testing.T) {
	doc := []byte("<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><rss><channel><item><title>Caf\xe9 AI</title><link>https://example.com/c</link></item></channel></rss>")
	items, err := parseFeed(doc)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Café AI", items[0].Title)
}

func TestParseFeed_Malformed(t *testing.T) {
	_, err := parseFeed([]byte(`plain text, not a feed`))
	assert.Error(t, err)

	_, err = parseFeed([]byte(`<html><body>nope</body></html>`))
	assert.Error(t, err)
}

func TestParseFeed_JSONFeed(t *testing.T) {
	doc := `{"version":"https://jsonfeed.org/version/1.1","title":"J","items":[
		{"id":"1","title":"JSON feed AI item","url":"https://example.com/j","date_published":"2024-05-01T10:00:00Z","content_text":"Body"}]}`
	items, err := parseFeed([]byte(doc))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://example.com/j", items[0].URL)
	assert.Equal(t, "Body", items[0].Summary)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), items[0].PublishedAt)
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "  Open   source\nmodel ", "Open source model"},
		{"escaped less-than survives", "<p>Rates: 5 &lt; 6 percent</p>", "Rates: 5 < 6 percent"},
		{"style body dropped", "<style>p{}</style>Body text", "Body text"},
		{"script body dropped", "<div>Lead<script>var x = 1;</script> story</div>", "Lead story"},
		{"entities", "Chip &amp; AI", "Chip & AI"},
		{"nested tags", "<p><b>Bold</b> and <a href=\"/x\">link</a></p>", "Bold and link"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanText(tt.in))
		})
	}
}

func TestParseFeed_DescriptionWithMarkup(t *testing.T) {
	doc := `<rss version="2.0"><channel><item>
		<title>Rates</title><link>https://example.com/r</link>
		<description><![CDATA[<style>p{color:red}</style><p>Rates: 5 &lt; 6 percent</p>]]></description>
	</item></channel></rss>`
	items, err := parseFeed([]byte(doc))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Rates: 5 < 6 percent", items[0].Summary)
}

func TestRSSFetcher_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rss2Sample))
	}))
	defer server.Close()

	f := NewRSSFetcher(testClient(0, false))
	items, err := f.Fetch(context.Background(), model.SourceConfig{ID: "ex", Kind: model.SourceKindRSS, URL: server.URL})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}
