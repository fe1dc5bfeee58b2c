// Package dispatch delivers finished briefings to notification channels.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/trendbrief/internal/model"
	"github.com/ppiankov/trendbrief/internal/worker"
)

// Dispatcher sends text to every target concurrently. One target's failure never
// affects another's, and Dispatch itself never fails.
type Dispatcher struct {
	poster      *poster
	sendTimeout time.Duration
	limiter     *worker.Limiter
	logger      *slog.Logger
}

// New creates a dispatcher. client may be nil.
func New(cfg model.DispatchConfig, client *http.Client, logger *slog.Logger) *Dispatcher {
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Dispatcher{
		poster:      &poster{client: client, maxRetries: cfg.MaxRetries},
		sendTimeout: timeout,
		limiter:     worker.NewLimiter(cfg.RatePerSecond, cfg.Burst),
		logger:      logger.With("component", "dispatch"),
	}
}

// ValidateTargets rejects targets whose kind is not a known channel
func ValidateTargets(targets []model.DispatchTarget) error {
	for _, t := range targets {
		if _, err := channelFor(t.Kind, nil); err != nil {
			return model.NewConfigurationError("dispatch.targets", "target %q: unknown channel kind %q", t.Name, t.Kind)
		}
	}
	return nil
}

// Dispatch sends text to all targets and reports one outcome per target, in target order
func (d *Dispatcher) Dispatch(ctx context.Context, text string, targets []model.DispatchTarget) model.DispatchReport {
	if len(targets) == 0 {
		return model.DispatchReport{NoOp: true, Outcomes: []model.DispatchOutcome{}}
	}

	outcomes := make([]model.DispatchOutcome, len(targets))
	var g errgroup.Group
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			outcomes[i] = d.deliver(ctx, text, target)
			return nil
		})
	}
	_ = g.Wait()

	return model.DispatchReport{Outcomes: outcomes}
}

func (d *Dispatcher) deliver(ctx context.Context, text string, target model.DispatchTarget) model.DispatchOutcome {
	out := model.DispatchOutcome{Target: target.Name, Kind: target.Kind}
	logger := d.logger.With("target", target.Name, "kind", target.Kind)

	ch, err := channelFor(target.Kind, d.poster)
	if err != nil {
		out.Status = model.DispatchFailed
		out.Reason = err.Error()
		return out
	}
	if err := ch.Check(target); err != nil {
		out.Status = model.DispatchSkipped
		out.Reason = errNotConfigured.Error()
		logger.Debug("target skipped", "reason", out.Reason)
		return out
	}

	limit := ch.Limit()
	if target.MaxBytes > 0 {
		limit = target.MaxBytes
	}
	batches := Batches(ch.Render(text), limit)

	for i, batch := range batches {
		if err := d.limiter.Wait(ctx, target.Name); err != nil {
			return failed(out, reasonFor(ctx, err), logger)
		}

		sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
		err := ch.Send(sendCtx, batch, target)
		timedOut := errors.Is(sendCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		cancel()

		if err != nil {
			if timedOut {
				return failed(out, "timeout", logger)
			}
			reason := redact(reasonFor(ctx, err), target)
			logger.Debug("send failed", "batch", i+1, "of", len(batches), "error", reason)
			return failed(out, reason, logger)
		}
		out.Batches++
	}

	out.Status = model.DispatchSent
	logger.Info("briefing delivered", "batches", out.Batches)
	return out
}

func failed(out model.DispatchOutcome, reason string, logger *slog.Logger) model.DispatchOutcome {
	out.Status = model.DispatchFailed
	out.Reason = reason
	logger.Warn("delivery failed", "reason", reason, "batches_sent", out.Batches)
	return out
}

// redact removes the target's credentials from text that reaches reports and logs
func redact(text string, target model.DispatchTarget) string {
	secrets := []string{target.Endpoint, target.Options["token"]}
	for _, secret := range secrets {
		if len(secret) >= 4 {
			text = strings.ReplaceAll(text, secret, "[redacted]")
		}
	}
	return text
}

func reasonFor(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return "cancelled"
	}
	return err.Error()
}
