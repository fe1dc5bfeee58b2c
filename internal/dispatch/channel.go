package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/slack-go/slack"

	"github.com/ppiankov/trendbrief/internal/httputil"
	"github.com/ppiankov/trendbrief/internal/model"
)

// errNotConfigured marks a target that lacks what its channel needs
var errNotConfigured = errors.New("not-configured")

// Channel is one notification channel variant
type Channel interface {
	Kind() model.ChannelKind
	// Limit is the default batch size in bytes
	Limit() int
	// Render converts markdown into the channel's markup dialect
	Render(markdown string) string
	// Check reports errNotConfigured when target cannot be sent to
	Check(target model.DispatchTarget) error
	Send(ctx context.Context, batch string, target model.DispatchTarget) error
}

// channelFor returns the variant for kind
func channelFor(kind model.ChannelKind, p *poster) (Channel, error) {
	switch kind {
	case model.ChannelTelegram:
		return &telegramChannel{p}, nil
	case model.ChannelSlack:
		return &slackChannel{p}, nil
	case model.ChannelFeishu:
		return &feishuChannel{p}, nil
	case model.ChannelDingTalk:
		return &dingTalkChannel{p}, nil
	case model.ChannelWeCom:
		return &weComChannel{p}, nil
	case model.ChannelNtfy:
		return &ntfyChannel{p}, nil
	case model.ChannelWebhook:
		return &webhookChannel{p}, nil
	default:
		return nil, model.NewConfigurationError("dispatch.targets", "unknown channel kind %q", kind)
	}
}

// poster performs channel HTTP calls, retrying 429 responses
type poster struct {
	client     *http.Client
	maxRetries int
}

// libClient is an *http.Client for SDKs, with the same 429 handling as post
func (p *poster) libClient() *http.Client {
	return &http.Client{Transport: &httputil.RetryTransport{Client: p.client, MaxRetries: p.maxRetries}}
}

// contextClient binds ctx to SDK requests built without one
type contextClient struct {
	ctx    context.Context
	client *http.Client
}

func (c contextClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(c.ctx))
}

// stripURL drops the request URL from transport errors. Channel URLs carry credentials.
func stripURL(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	op, inner := urlErr.Op, urlErr.Err
	// SDK clients nest one *url.Error per http.Client layer
	for errors.As(inner, &urlErr) {
		inner = urlErr.Err
	}
	return fmt.Errorf("%s request: %w", op, inner)
}

// post sends body and returns the response body of a 2xx reply
func (p *poster) post(ctx context.Context, endpoint, contentType string, body []byte, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := httputil.DoWithRetry(ctx, p.client, req, p.maxRetries)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", stripURL(err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status: %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}

func (p *poster) postJSON(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return p.post(ctx, endpoint, "application/json", body, nil)
}

// codeResponse covers the DingTalk, WeCom and Feishu reply envelopes
type codeResponse struct {
	ErrCode *int   `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
	Code    *int   `json:"code"`
	Msg     string `json:"msg"`
}

func checkCode(body []byte) error {
	var r codeResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil
	}
	if r.ErrCode != nil && *r.ErrCode != 0 {
		return fmt.Errorf("channel error %d: %s", *r.ErrCode, r.ErrMsg)
	}
	if r.Code != nil && *r.Code != 0 {
		return fmt.Errorf("channel error %d: %s", *r.Code, r.Msg)
	}
	return nil
}

func requireEndpoint(target model.DispatchTarget) error {
	if !target.Configured() {
		return errNotConfigured
	}
	return nil
}

// telegramChannel posts to the Bot API. Endpoint holds the bot token;
// options: chat_id (required), api_base.
type telegramChannel struct{ p *poster }

func (c *telegramChannel) Kind() model.ChannelKind { return model.ChannelTelegram }
func (c *telegramChannel) Limit() int              { return 4096 }
func (c *telegramChannel) Render(md string) string { return toTelegramHTML(md) }

func (c *telegramChannel) Check(target model.DispatchTarget) error {
	if !target.Configured() || target.Options["chat_id"] == "" {
		return errNotConfigured
	}
	return nil
}

func (c *telegramChannel) Send(ctx context.Context, batch string, target model.DispatchTarget) error {
	base := target.Options["api_base"]
	if base == "" {
		base = "https://api.telegram.org"
	}

	// Built directly rather than through NewBotAPI, which calls getMe first
	bot := &tgbotapi.BotAPI{
		Token:  target.Endpoint,
		Client: contextClient{ctx: ctx, client: c.p.libClient()},
	}
	bot.SetAPIEndpoint(strings.TrimSuffix(base, "/") + "/bot%s/%s")

	msg := tgbotapi.MessageConfig{
		Text:                  batch,
		ParseMode:             tgbotapi.ModeHTML,
		DisableWebPagePreview: true,
	}
	chatID := target.Options["chat_id"]
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		msg.ChatID = id
	} else {
		msg.ChannelUsername = chatID
	}

	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("telegram: %w", stripURL(err))
	}
	return nil
}

// slackChannel posts to an incoming webhook URL; option channel overrides the webhook default
type slackChannel struct{ p *poster }

func (c *slackChannel) Kind() model.ChannelKind                 { return model.ChannelSlack }
func (c *slackChannel) Limit() int                              { return 4000 }
func (c *slackChannel) Render(md string) string                 { return toSlackMrkdwn(md) }
func (c *slackChannel) Check(target model.DispatchTarget) error { return requireEndpoint(target) }

func (c *slackChannel) Send(ctx context.Context, batch string, target model.DispatchTarget) error {
	msg := &slack.WebhookMessage{Text: batch, Channel: target.Options["channel"]}
	if err := slack.PostWebhookCustomHTTPContext(ctx, target.Endpoint, c.p.libClient(), msg); err != nil {
		return fmt.Errorf("slack: %w", stripURL(err))
	}
	return nil
}

// feishuChannel posts an interactive card with a markdown element to a bot webhook
type feishuChannel struct{ p *poster }

func (c *feishuChannel) Kind() model.ChannelKind                 { return model.ChannelFeishu }
func (c *feishuChannel) Limit() int                              { return 29000 }
func (c *feishuChannel) Render(md string) string                 { return asMarkdown(md) }
func (c *feishuChannel) Check(target model.DispatchTarget) error { return requireEndpoint(target) }

func (c *feishuChannel) Send(ctx context.Context, batch string, target model.DispatchTarget) error {
	payload := map[string]any{
		"msg_type": "interactive",
		"card": map[string]any{
			"elements": []map[string]any{{"tag": "markdown", "content": batch}},
		},
	}
	body, err := c.p.postJSON(ctx, target.Endpoint, payload)
	if err != nil {
		return fmt.Errorf("feishu: %w", err)
	}
	if err := checkCode(body); err != nil {
		return fmt.Errorf("feishu: %w", err)
	}
	return nil
}

// dingTalkChannel posts a markdown message to a robot webhook
type dingTalkChannel struct{ p *poster }

func (c *dingTalkChannel) Kind() model.ChannelKind                 { return model.ChannelDingTalk }
func (c *dingTalkChannel) Limit() int                              { return 20000 }
func (c *dingTalkChannel) Render(md string) string                 { return asMarkdown(md) }
func (c *dingTalkChannel) Check(target model.DispatchTarget) error { return requireEndpoint(target) }

func (c *dingTalkChannel) Send(ctx context.Context, batch string, target model.DispatchTarget) error {
	title := target.Options["title"]
	if title == "" {
		title = "Trend briefing"
	}
	payload := map[string]any{
		"msgtype":  "markdown",
		"markdown": map[string]string{"title": title, "text": batch},
	}
	body, err := c.p.postJSON(ctx, target.Endpoint, payload)
	if err != nil {
		return fmt.Errorf("dingtalk: %w", err)
	}
	if err := checkCode(body); err != nil {
		return fmt.Errorf("dingtalk: %w", err)
	}
	return nil
}

// weComChannel posts a markdown message to a group robot webhook
type weComChannel struct{ p *poster }

func (c *weComChannel) Kind() model.ChannelKind                 { return model.ChannelWeCom }
func (c *weComChannel) Limit() int                              { return 4096 }
func (c *weComChannel) Render(md string) string                 { return asMarkdown(md) }
func (c *weComChannel) Check(target model.DispatchTarget) error { return requireEndpoint(target) }

func (c *weComChannel) Send(ctx context.Context, batch string, target model.DispatchTarget) error {
	payload := map[string]any{
		"msgtype":  "markdown",
		"markdown": map[string]string{"content": batch},
	}
	body, err := c.p.postJSON(ctx, target.Endpoint, payload)
	if err != nil {
		return fmt.Errorf("wework: %w", err)
	}
	if err := checkCode(body); err != nil {
		return fmt.Errorf("wework: %w", err)
	}
	return nil
}

// ntfyChannel publishes to a topic URL; options: token, title, priority
type ntfyChannel struct{ p *poster }

func (c *ntfyChannel) Kind() model.ChannelKind                 { return model.ChannelNtfy }
func (c *ntfyChannel) Limit() int                              { return 3800 }
func (c *ntfyChannel) Render(md string) string                 { return asMarkdown(md) }
func (c *ntfyChannel) Check(target model.DispatchTarget) error { return requireEndpoint(target) }

func (c *ntfyChannel) Send(ctx context.Context, batch string, target model.DispatchTarget) error {
	header := http.Header{}
	header.Set("Markdown", "yes")
	if title := target.Options["title"]; title != "" {
		header.Set("Title", title)
	}
	if priority := target.Options["priority"]; priority != "" {
		header.Set("Priority", priority)
	}
	if token := target.Options["token"]; token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	if _, err := c.p.post(ctx, target.Endpoint, "text/plain; charset=utf-8", []byte(batch), header); err != nil {
		return fmt.Errorf("ntfy: %w", err)
	}
	return nil
}

// webhookChannel posts {"text": batch} to any URL; option format=plain strips markdown
type webhookChannel struct{ p *poster }

func (c *webhookChannel) Kind() model.ChannelKind                 { return model.ChannelWebhook }
func (c *webhookChannel) Limit() int                              { return 20000 }
func (c *webhookChannel) Check(target model.DispatchTarget) error { return requireEndpoint(target) }

// Render keeps markdown; plain output is chosen per target in Send
func (c *webhookChannel) Render(md string) string { return md }

func (c *webhookChannel) Send(ctx context.Context, batch string, target model.DispatchTarget) error {
	if target.Options["format"] == "plain" {
		batch = toPlainText(batch)
	}
	if _, err := c.p.postJSON(ctx, target.Endpoint, map[string]string{"text": batch}); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}
