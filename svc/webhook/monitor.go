package webhook

import (
	"context"
	"log/slog"
	"time"
)

// Monitor watches the ledger for processing failures. It is meant to run
// hourly from the scheduler and complain in the logs when the error share
// of recent deliveries crosses its thresholds.
type Monitor struct {
	ledger Ledger
	logger *slog.Logger
	now    func() time.Time

	window        time.Duration
	warnRatio     float64
	criticalRatio float64
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

func WithMonitorLogger(l *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithMonitorClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

func WithMonitorWindow(window time.Duration) MonitorOption {
	return func(m *Monitor) {
		if window > 0 {
			m.window = window
		}
	}
}

func WithMonitorThresholds(warn, critical float64) MonitorOption {
	return func(m *Monitor) {
		if warn > 0 {
			m.warnRatio = warn
		}
		if critical > warn {
			m.criticalRatio = critical
		}
	}
}

// NewMonitor creates a monitor. Panics on a nil ledger.
func NewMonitor(ledger Ledger, opts ...MonitorOption) *Monitor {
	if ledger == nil {
		panic("webhook: ledger is required")
	}
	m := &Monitor{
		ledger:        ledger,
		logger:        slog.Default(),
		now:           func() time.Time { return time.Now().UTC() },
		window:        time.Hour,
		warnRatio:     0.1,
		criticalRatio: 0.5,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run inspects the most recent window once.
func (m *Monitor) Run(ctx context.Context) error {
	counts, err := m.ledger.CountsSince(ctx, m.now().Add(-m.window))
	if err != nil {
		m.logger.ErrorContext(ctx, "webhook monitor query failed", slog.String("error", err.Error()))
		return err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return nil
	}

	errors := counts[OutcomeError]
	ratio := float64(errors) / float64(total)

	attrs := []any{
		slog.Int("total", total),
		slog.Int("errors", errors),
		slog.Int("duplicates", counts[OutcomeDuplicate]),
		slog.Int("skipped", counts[OutcomeSkipped]),
		slog.Int("ignored", counts[OutcomeIgnored]),
		slog.Duration("window", m.window),
	}

	switch {
	case ratio >= m.criticalRatio:
		m.logger.ErrorContext(ctx, "webhook error rate critical", attrs...)
	case ratio >= m.warnRatio:
		m.logger.WarnContext(ctx, "webhook error rate elevated", attrs...)
	default:
		m.logger.InfoContext(ctx, "webhook processing healthy", attrs...)
	}
	return nil
}
