package model

import "time"

// BriefingReport is the complete result of one briefing request
type BriefingReport struct {
	RequestID   string           `json:"request_id"`
	Status      BriefingStatus   `json:"status"`
	Text        string           `json:"text,omitempty"`       // Composed briefing or the empty-match sentinel
	Matched     int              `json:"matched"`              // Number of matched items
	Omitted     int              `json:"omitted,omitempty"`    // Matched items dropped by the prompt budget
	RuleStats   []RuleStat       `json:"rule_stats,omitempty"` // Per-rule hit counts
	Sources     []SourceStatus   `json:"sources"`
	Degraded    bool             `json:"degraded"` // At least one source was omitted
	Generation  GenerationReport `json:"generation"`
	Dispatch    DispatchReport   `json:"dispatch"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at"`
}

// BriefingStatus is the in-band result classification
type BriefingStatus string

const (
	StatusOK        BriefingStatus = "ok"        // Generated text from matched items
	StatusEmpty     BriefingStatus = "empty"     // Nothing matched, sentinel returned
	StatusFailed    BriefingStatus = "failed"    // Generation failed
	StatusCancelled BriefingStatus = "cancelled" // Caller went away
)

// SourceState is the per-source aggregation outcome
type SourceState string

const (
	SourceOK       SourceState = "OK"
	SourceDegraded SourceState = "DEGRADED"
)

// SourceStatus records what happened to one source during aggregation
type SourceStatus struct {
	SourceID   string      `json:"source_id"`
	Name       string      `json:"name,omitempty"`
	State      SourceState `json:"state"`
	Items      int         `json:"items"`
	Reason     string      `json:"reason,omitempty"`
	DurationMS int64       `json:"duration_ms"`
}

// GenerationReport summarizes the orchestrator run
type GenerationReport struct {
	State      GenerationState `json:"state"`
	Backend    string          `json:"backend,omitempty"`
	Model      string          `json:"model,omitempty"`
	Chunks     int             `json:"chunks"`
	Error      string          `json:"error,omitempty"`
	DurationMS int64           `json:"duration_ms"`
}

// DispatchStatus is the per-target delivery outcome
type DispatchStatus string

const (
	DispatchSent    DispatchStatus = "SENT"
	DispatchFailed  DispatchStatus = "FAILED"
	DispatchSkipped DispatchStatus = "SKIPPED"
)

// DispatchOutcome records delivery to one target
type DispatchOutcome struct {
	Target  string         `json:"target"`
	Kind    ChannelKind    `json:"kind"`
	Status  DispatchStatus `json:"status"`
	Reason  string         `json:"reason,omitempty"`
	Batches int            `json:"batches"`
}

// DispatchReport aggregates all target outcomes
type DispatchReport struct {
	NoOp     bool              `json:"noop"` // Target list was empty
	Outcomes []DispatchOutcome `json:"outcomes"`
}

// Sent counts successfully delivered targets
func (r DispatchReport) Sent() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == DispatchSent {
			n++
		}
	}
	return n
}
