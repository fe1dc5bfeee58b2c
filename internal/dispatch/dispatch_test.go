package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/trendbrief/internal/httputil"
	"github.com/ppiankov/trendbrief/internal/logging"
	"github.com/ppiankov/trendbrief/internal/model"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

type capture struct {
	Path   string
	Header http.Header
	Body   string
}

// recorder is an httptest server that stores every request and replies via handle
type recorder struct {
	*httptest.Server
	mu       sync.Mutex
	requests []capture
}

func newRecorder(t *testing.T, handle func(w http.ResponseWriter, r *http.Request, n int)) *recorder {
	rec := &recorder{}
	rec.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.requests = append(rec.requests, capture{Path: r.URL.Path, Header: r.Header.Clone(), Body: string(body)})
		n := len(rec.requests)
		rec.mu.Unlock()
		if handle != nil {
			handle(w, r, n)
		}
	}))
	t.Cleanup(rec.Close)
	return rec
}

func (r *recorder) all() []capture {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]capture(nil), r.requests...)
}

func newTestDispatcher(timeout time.Duration) *Dispatcher {
	return New(model.DispatchConfig{SendTimeout: timeout, MaxRetries: 2}, nil, logging.Discard())
}

func TestDispatch_EmptyTargetsIsNoOp(t *testing.T) {
	rep := newTestDispatcher(time.Second).Dispatch(context.Background(), "text", nil)
	assert.True(t, rep.NoOp)
	assert.Empty(t, rep.Outcomes)
}

func TestDispatch_FailureIsolation(t *testing.T) {
	ok := newRecorder(t, nil)
	broken := newRecorder(t, func(w http.ResponseWriter, r *http.Request, n int) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	targets := []model.DispatchTarget{
		{Name: "team-slack", Kind: model.ChannelSlack, Endpoint: ok.URL + "/slack", Enabled: true},
		{Name: "broken-hook", Kind: model.ChannelWebhook, Endpoint: broken.URL, Enabled: true},
		{Name: "tg", Kind: model.ChannelTelegram, Endpoint: "token", Enabled: true},
		{Name: "empty", Kind: model.ChannelDingTalk, Enabled: true},
		{Name: "phone", Kind: model.ChannelNtfy, Endpoint: ok.URL + "/briefings", Enabled: true},
	}

	rep := newTestDispatcher(time.Second).Dispatch(context.Background(), "## AI\nAI leads today.", targets)

	require.Len(t, rep.Outcomes, len(targets))
	assert.False(t, rep.NoOp)

	want := []model.DispatchStatus{model.DispatchSent, model.DispatchFailed, model.DispatchSkipped, model.DispatchSkipped, model.DispatchSent}
	for i, o := range rep.Outcomes {
		assert.Equal(t, targets[i].Name, o.Target)
		assert.Equal(t, want[i], o.Status, o.Target)
	}
	assert.Contains(t, rep.Outcomes[1].Reason, "500")
	assert.Equal(t, "not-configured", rep.Outcomes[2].Reason)
	assert.Equal(t, 1, rep.Outcomes[0].Batches)
	assert.Len(t, ok.all(), 2)
}

func TestDispatch_SendTimeout(t *testing.T) {
	slow := newRecorder(t, func(w http.ResponseWriter, r *http.Request, n int) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	fast := newRecorder(t, nil)

	targets := []model.DispatchTarget{
		{Name: "slow", Kind: model.ChannelWebhook, Endpoint: slow.URL},
		{Name: "fast", Kind: model.ChannelWebhook, Endpoint: fast.URL},
	}
	start := time.Now()
	rep := newTestDispatcher(50 * time.Millisecond).Dispatch(context.Background(), "hello", targets)

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, model.DispatchFailed, rep.Outcomes[0].Status)
	assert.Equal(t, "timeout", rep.Outcomes[0].Reason)
	assert.Equal(t, model.DispatchSent, rep.Outcomes[1].Status)
}

func TestDispatch_CallerCancelled(t *testing.T) {
	srv := newRecorder(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep := newTestDispatcher(time.Second).Dispatch(ctx, "hello", []model.DispatchTarget{{Name: "hook", Kind: model.ChannelWebhook, Endpoint: srv.URL}})
	assert.Equal(t, model.DispatchFailed, rep.Outcomes[0].Status)
	assert.Equal(t, "cancelled", rep.Outcomes[0].Reason)
}

func TestDispatch_MultiBatchInOrder(t *testing.T) {
	srv := newRecorder(t, nil)
	var paras []string
	for i := 0; i < 6; i++ {
		paras = append(paras, strings.Repeat("trend ", 6))
	}
	target := model.DispatchTarget{Name: "hook", Kind: model.ChannelWebhook, Endpoint: srv.URL, MaxBytes: 90}

	rep := newTestDispatcher(time.Second).Dispatch(context.Background(), strings.Join(paras, "\n\n"), []model.DispatchTarget{target})
	require.Equal(t, model.DispatchSent, rep.Outcomes[0].Status)

	reqs := srv.all()
	require.Equal(t, rep.Outcomes[0].Batches, len(reqs))
	require.Greater(t, len(reqs), 1)
	for i, r := range reqs {
		var payload map[string]string
		require.NoError(t, json.Unmarshal([]byte(r.Body), &payload))
		assert.True(t, strings.HasPrefix(payload["text"], batchHeader(i+1, len(reqs))))
		assert.LessOrEqual(t, len(payload["text"]), 90)
	}
}

func TestDispatch_RetriesOn429(t *testing.T) {
	srv := newRecorder(t, func(w http.ResponseWriter, r *http.Request, n int) {
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	})

	rep := newTestDispatcher(time.Second).Dispatch(context.Background(), "hi", []model.DispatchTarget{{Name: "ding", Kind: model.ChannelDingTalk, Endpoint: srv.URL}})
	assert.Equal(t, model.DispatchSent, rep.Outcomes[0].Status)
	reqs := srv.all()
	require.Len(t, reqs, 2)
	assert.Equal(t, reqs[0].Body, reqs[1].Body)
}

func TestDispatch_UnknownKindFails(t *testing.T) {
	rep := newTestDispatcher(time.Second).Dispatch(context.Background(), "hi", []model.DispatchTarget{{Name: "pager", Kind: "pager", Endpoint: "http://x"}})
	assert.Equal(t, model.DispatchFailed, rep.Outcomes[0].Status)
}

func TestValidateTargets(t *testing.T) {
	assert.NoError(t, ValidateTargets([]model.DispatchTarget{{Name: "a", Kind: model.ChannelSlack}, {Name: "b", Kind: model.ChannelWeCom}}))
	err := ValidateTargets([]model.DispatchTarget{{Name: "pager", Kind: "pager"}})
	assert.True(t, model.IsConfigurationError(err))
}

func TestTelegramChannel_Payload(t *testing.T) {
	var calls atomic.Int32
	srv := newRecorder(t, func(w http.ResponseWriter, r *http.Request, n int) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	})
	target := model.DispatchTarget{
		Name: "tg", Kind: model.ChannelTelegram, Endpoint: "123:abc",
		Options: map[string]string{"chat_id": "-100", "api_base": srv.URL},
	}

	rep := newTestDispatcher(time.Second).Dispatch(context.Background(), "**AI** <b>", []model.DispatchTarget{target})
	require.Equal(t, model.DispatchSent, rep.Outcomes[0].Status)

	req := srv.all()[0]
	assert.Equal(t, "/bot123:abc/sendMessage", req.Path)
	form, err := url.ParseQuery(req.Body)
	require.NoError(t, err)
	assert.Equal(t, "-100", form.Get("chat_id"))
	assert.Equal(t, "HTML", form.Get("parse_mode"))
	assert.Equal(t, "<b>AI</b> &lt;b&gt;", form.Get("text"))
}

func TestTelegramChannel_NotOK(t *testing.T) {
	srv := newRecorder(t, func(w http.ResponseWriter, r *http.Request, n int) {
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	})
	target := model.DispatchTarget{Name: "tg", Kind: model.ChannelTelegram, Endpoint: "t", Options: map[string]string{"chat_id": "1", "api_base": srv.URL}}

	rep := newTestDispatcher(time.Second).Dispatch(context.Background(), "hi", []model.DispatchTarget{target})
	assert.Equal(t, model.DispatchFailed, rep.Outcomes[0].Status)
	assert.Contains(t, rep.Outcomes[0].Reason, "chat not found")
}

func TestChannelPayloads(t *testing.T) {
	srv := newRecorder(t, func(w http.ResponseWriter, r *http.Request, n int) {
		_, _ = w.Write([]byte(`{"code":0,"errcode":0}`))
	})
	targets := []model.DispatchTarget{
		{Name: "f", Kind: model.ChannelFeishu, Endpoint: srv.URL + "/feishu"},
		{Name: "d", Kind: model.ChannelDingTalk, Endpoint: srv.URL + "/ding", Options: map[string]string{"title": "Daily"}},
		{Name: "w", Kind: model.ChannelWeCom, Endpoint: srv.URL + "/wework"},
		{Name: "n", Kind: model.ChannelNtfy, Endpoint: srv.URL + "/topic", Options: map[string]string{"token": "tk", "title": "Brief"}},
		{Name: "s", Kind: model.ChannelSlack, Endpoint: srv.URL + "/slack"},
		{Name: "h", Kind: model.ChannelWebhook, Endpoint: srv.URL + "/hook", Options: map[string]string{"format": "plain"}},
	}

	rep := newTestDispatcher(time.Second).Dispatch(context.Background(), "**AI** news", targets)
	for _, o := range rep.Outcomes {
		assert.Equal(t, model.DispatchSent, o.Status, o.Target)
	}

	byPath := map[string]capture{}
	for _, c := range srv.all() {
		byPath[c.Path] = c
	}

	assert.JSONEq(t, `{"msg_type":"interactive","card":{"elements":[{"tag":"markdown","content":"**AI** news"}]}}`, byPath["/feishu"].Body)
	assert.JSONEq(t, `{"msgtype":"markdown","markdown":{"title":"Daily","text":"**AI** news"}}`, byPath["/ding"].Body)
	assert.JSONEq(t, `{"msgtype":"markdown","markdown":{"content":"**AI** news"}}`, byPath["/wework"].Body)
	var slackMsg map[string]any
	require.NoError(t, json.Unmarshal([]byte(byPath["/slack"].Body), &slackMsg))
	assert.Equal(t, "*AI* news", slackMsg["text"])
	assert.JSONEq(t, `{"text":"AI news"}`, byPath["/hook"].Body)

	ntfy := byPath["/topic"]
	assert.Equal(t, "**AI** news", ntfy.Body)
	assert.Equal(t, "yes", ntfy.Header.Get("Markdown"))
	assert.Equal(t, "Bearer tk", ntfy.Header.Get("Authorization"))
	assert.Equal(t, "Brief", ntfy.Header.Get("Title"))
}

func TestChannelErrorCodes(t *testing.T) {
	srv := newRecorder(t, func(w http.ResponseWriter, r *http.Request, n int) {
		if strings.HasSuffix(r.URL.Path, "feishu") {
			_, _ = w.Write([]byte(`{"code":19001,"msg":"param invalid"}`))
			return
		}
		_, _ = w.Write([]byte(`{"errcode":310000,"errmsg":"keywords not in content"}`))
	})
	targets := []model.DispatchTarget{
		{Name: "f", Kind: model.ChannelFeishu, Endpoint: srv.URL + "/feishu"},
		{Name: "d", Kind: model.ChannelDingTalk, Endpoint: srv.URL + "/ding"},
	}

	rep := newTestDispatcher(time.Second).Dispatch(context.Background(), "x", targets)
	assert.Equal(t, model.DispatchFailed, rep.Outcomes[0].Status)
	assert.Contains(t, rep.Outcomes[0].Reason, "param invalid")
	assert.Equal(t, model.DispatchFailed, rep.Outcomes[1].Status)
	assert.Contains(t, rep.Outcomes[1].Reason, "keywords not in content")
}

func TestDispatch_ReasonsNeverCarryCredentials(t *testing.T) {
	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()

	const token = "123456:SECRET-BOT-TOKEN"
	targets := []model.DispatchTarget{
		{Name: "tg", Kind: model.ChannelTelegram, Endpoint: token, Options: map[string]string{"chat_id": "42", "api_base": closed.URL}},
		{Name: "slack", Kind: model.ChannelSlack, Endpoint: closed.URL + "/services/T000/B000/SECRETHOOK"},
		{Name: "ding", Kind: model.ChannelDingTalk, Endpoint: closed.URL + "/robot/send?access_token=SECRETDING"},
	}

	var logs strings.Builder
	d := New(model.DispatchConfig{SendTimeout: time.Second}, nil, logging.NewWithWriter(&logs, "debug", "text"))
	rep := d.Dispatch(context.Background(), "hello", targets)

	for _, o := range rep.Outcomes {
		assert.Equal(t, model.DispatchFailed, o.Status, o.Target)
		assert.NotEmpty(t, o.Reason, o.Target)
		assert.NotContains(t, o.Reason, "SECRET", o.Target)
	}
	assert.NotContains(t, logs.String(), "SECRET")
}

func TestRedact(t *testing.T) {
	target := model.DispatchTarget{Endpoint: "https://hooks.test/abc123", Options: map[string]string{"token": "tk-secret"}}
	got := redact(`Post "https://hooks.test/abc123": refused; Bearer tk-secret`, target)
	assert.Equal(t, `Post "[redacted]": refused; Bearer [redacted]`, got)
	assert.Equal(t, "x", redact("x", model.DispatchTarget{}))
}

func TestStripURL(t *testing.T) {
	inner := &url.Error{Op: "Post", URL: "https://api.test/botSECRET/sendMessage", Err: context.DeadlineExceeded}
	outer := fmt.Errorf("failed to post: %w", &url.Error{Op: "Post", URL: "https://api.test/botSECRET/sendMessage", Err: inner})

	err := stripURL(outer)
	assert.NotContains(t, err.Error(), "SECRET")
	assert.Equal(t, "Post request: context deadline exceeded", err.Error())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
