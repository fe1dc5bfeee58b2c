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

const hotListPayload = `{
  "status": "success",
  "id": "weibo",
  "items": [
    {"id": 1, "title": "AI breakthrough announced", "url": "https://s.weibo.com/1", "mobileUrl": "https://m.weibo.cn/1", "extra": {"icon": "hot", "hot": 12345, "info": {"nested": true}}},
    {"id": 2, "title": "  ", "url": "https://s.weibo.com/blank"},
    {"id": 3, "title": "Stock market rallies", "url": "https://s.weibo.com/3", "pubDate": 1700000000000}
  ]
}`

func TestParseNewsNow(t *testing.T) {
	items, err := parseNewsNow([]byte(hotListPayload))
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "AI breakthrough announced", items[0].Title)
	assert.Equal(t, 1, items[0].Rank)
	assert.Equal(t, "https://m.weibo.cn/1", items[0].MobileURL)
	assert.Equal(t, map[string]string{"icon": "hot", "hot": "12345"}, items[0].Extra)

	assert.Equal(t, 2, items[1].Rank, "blank titles do not consume a rank")
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), items[1].PublishedAt)
}

func TestParseNewsNow_ErrorStatus(t *testing.T) {
	_, err := parseNewsNow([]byte(`{"status":"error","items":[]}`))
	assert.Error(t, err)

	_, err = parseNewsNow([]byte(`<html>`))
	assert.Error(t, err)
}

func TestNewsNowFetcher_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "weibo", r.URL.Query().Get("id"))
		_, _ = w.Write([]byte(hotListPayload))
	}))
	defer server.Close()

	f := NewNewsNowFetcher(testClient(0, false))
	items, err := f.Fetch(context.Background(), model.SourceConfig{ID: "weibo", Kind: model.SourceKindNewsNow, URL: server.URL + "/api/s?id=weibo"})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}
