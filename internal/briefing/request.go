package briefing

import (
	"net/url"
	"time"

	"github.com/ppiankov/trendbrief/internal/model"
	"github.com/ppiankov/trendbrief/internal/validate"
)

// Date ranges accepted by Request.DateRange
const (
	RangeDaily   = "daily"
	RangeWeekly  = "weekly"
	RangeMonthly = "monthly"
)

// Request is one briefing invocation. The scheduled global briefing and an
// externally triggered personal briefing use the same shape.
type Request struct {
	Rules          []string `json:"rules" validate:"required,min=1"`
	AllowedSources []string `json:"allowed_sources,omitempty"` // nil means every configured source
	CustomFeedURLs []string `json:"custom_feed_urls,omitempty" validate:"max=20,dive,required,url"`
	Stream         *bool    `json:"stream,omitempty"`   // Defaults to true
	Channels       []string `json:"channels,omitempty"` // nil means every enabled target, empty means none
	Model          string   `json:"model,omitempty"`
	DateRange      string   `json:"date_range,omitempty" validate:"omitempty,oneof=daily weekly monthly"`
}

// Streaming reports whether the caller wants incremental output
func (r Request) Streaming() bool {
	return r.Stream == nil || *r.Stream
}

// Validate checks the request shape. Rule syntax is checked when the rules are parsed.
func (r Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	for _, raw := range r.CustomFeedURLs {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return model.NewConfigurationError("custom_feed_urls", "%q is not an http(s) URL", raw)
		}
	}
	return nil
}

// window maps the date range onto an archive lookback and a prompt report mode
func (r Request) window() (time.Duration, string) {
	switch r.DateRange {
	case RangeWeekly:
		return 7 * 24 * time.Hour, RangeWeekly
	case RangeMonthly:
		return 30 * 24 * time.Hour, RangeMonthly
	default:
		return 0, RangeDaily
	}
}
