package model

// ChannelKind tags a notification channel variant
type ChannelKind string

const (
	ChannelTelegram ChannelKind = "telegram"
	ChannelSlack    ChannelKind = "slack"
	ChannelFeishu   ChannelKind = "feishu"
	ChannelDingTalk ChannelKind = "dingtalk"
	ChannelWeCom    ChannelKind = "wework"
	ChannelNtfy     ChannelKind = "ntfy"
	ChannelWebhook  ChannelKind = "webhook"
)

// MinBatchBytes is the smallest max_bytes a target may configure
const MinBatchBytes = 64

// DispatchTarget is a configured destination for a finished briefing
type DispatchTarget struct {
	Name     string            `json:"name" yaml:"name" mapstructure:"name" validate:"required"`
	Kind     ChannelKind       `json:"kind" yaml:"kind" mapstructure:"kind" validate:"required,oneof=telegram slack feishu dingtalk wework ntfy webhook"`
	Endpoint string            `json:"-" yaml:"endpoint" mapstructure:"endpoint"`
	Options  map[string]string `json:"-" yaml:"options,omitempty" mapstructure:"options"`
	Enabled  bool              `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	MaxBytes int               `json:"max_bytes,omitempty" yaml:"max_bytes,omitempty" mapstructure:"max_bytes"` // Overrides the channel default
}

// Configured reports whether the target has enough to attempt delivery
func (t DispatchTarget) Configured() bool {
	return t.Endpoint != ""
}
