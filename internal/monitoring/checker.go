package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ahermangesh/Leads/internal/config"
	"github.com/ahermangesh/Leads/internal/model"
)

// minFinished is the sample size below which the failure rate is not alerted on.
const minFinished = 5

// Checker periodically refreshes the store-backed gauges and warns when the
// failure rate crosses the configured threshold.
type Checker struct {
	collector *Collector
	metrics   *Metrics
	cfg       config.MonitoringConfig
}

// NewChecker creates a background checker. metrics may be nil.
func NewChecker(collector *Collector, metrics *Metrics, cfg config.MonitoringConfig) *Checker {
	return &Checker{collector: collector, metrics: metrics, cfg: cfg}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("monitoring: starting checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackHours),
	)

	c.Check(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("monitoring: checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check runs one collection. It reports whether the failure rate alert
// fired.
func (c *Checker) Check(ctx context.Context) bool {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackHours)
	if err != nil {
		zap.L().Error("monitoring: collect failed", zap.Error(err))
		return false
	}

	if c.metrics != nil {
		for _, s := range model.AllStates {
			c.metrics.StoredLeads.WithLabelValues(string(s)).Set(float64(snap.LeadsByState[s]))
		}
		c.metrics.SentWindow.Set(float64(snap.Sent))
		c.metrics.FailureRate.Set(snap.FailureRate)
	}

	if snap.Finished() < minFinished || c.cfg.FailureRateThreshold <= 0 ||
		snap.FailureRate <= c.cfg.FailureRateThreshold {
		zap.L().Debug("monitoring: check ok",
			zap.Int("sent", snap.Sent),
			zap.Int("failed", snap.Failed),
		)
		return false
	}

	zap.L().Warn("monitoring: failure rate above threshold",
		zap.Float64("failure_rate", snap.FailureRate),
		zap.Float64("threshold", c.cfg.FailureRateThreshold),
		zap.Int("failed", snap.Failed),
		zap.Int("finished", snap.Finished()),
		zap.Int("lookback_hours", snap.LookbackHours),
	)
	return true
}
