// Package adaptive implements the feedback loop that picks how much parity
// to attach to the next transfer given recently observed loss.
package adaptive

import (
	"sync"

	"go.uber.org/zap"
)

var logger = zap.NewNop().Sugar()

// SetLogger replaces the package logger, mirroring the udpsess package's
// swappable DefaultSnmp.
func SetLogger(l *zap.SugaredLogger) {
	if l != nil {
		logger = l
	}
}

// thresholdStep is one row of the default threshold table.
type thresholdStep struct {
	maxLoss float64
	parity  int
}

var defaultThresholds = []thresholdStep{
	{0.05, 5},
	{0.10, 10},
	{0.15, 15},
	{0.20, 20},
}

const defaultOverflowParity = 25
const windowSize = 100
const minSamplesToUpdate = 10

// Config bounds and seeds a Controller.
type Config struct {
	DataShards int
	MinParity  int
	MaxParity  int

	// Thresholds overrides the default loss-rate -> parity table. Each step
	// is (maxLoss, parity) in ascending maxLoss order; a loss rate above the
	// last step's maxLoss gets OverflowParity.
	Thresholds []thresholdStep

	// OverflowParity is the parity recommended once the loss rate exceeds
	// every configured threshold step.
	OverflowParity int
}

// Step constructs one row of a custom threshold table for Config.Thresholds.
func Step(maxLoss float64, parity int) thresholdStep {
	return thresholdStep{maxLoss: maxLoss, parity: parity}
}

// Controller tracks a smoothed loss-rate estimate and recommends a parity
// shard count for the next transfer. All state is guarded by one mutex;
// callers never need to hold any lock themselves.
type Controller struct {
	mu sync.Mutex

	dataShards int
	minParity  int
	maxParity  int
	thresholds []thresholdStep
	overflow   int

	parityCur int
	lossRate  float64
	samples   uint64
	losses    uint64
}

// New builds a Controller. dataShards is reported back via Status but does
// not otherwise affect the recommendation.
func New(cfg Config) *Controller {
	thresholds := cfg.Thresholds
	if len(thresholds) == 0 {
		thresholds = defaultThresholds
	}
	overflow := cfg.OverflowParity
	if overflow == 0 {
		overflow = defaultOverflowParity
	}
	minParity := cfg.MinParity
	if minParity == 0 {
		minParity = 1
	}
	maxParity := cfg.MaxParity
	if maxParity == 0 {
		maxParity = overflow
	}

	c := &Controller{
		dataShards: cfg.DataShards,
		minParity:  minParity,
		maxParity:  maxParity,
		thresholds: thresholds,
		overflow:   overflow,
	}
	c.parityCur = c.clamp(c.recommend(0))
	return c
}

// RecordSuccess registers one successfully delivered shard.
func (c *Controller) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observe(false)
}

// RecordLoss registers one lost shard.
func (c *Controller) RecordLoss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observe(true)
}

func (c *Controller) observe(lost bool) {
	c.samples++
	if lost {
		c.losses++
	}

	if c.samples >= minSamplesToUpdate {
		instant := float64(c.losses) / float64(c.samples)
		c.lossRate = 0.7*c.lossRate + 0.3*instant
		c.parityCur = c.clamp(c.recommend(c.lossRate))
		logger.Debugw("adaptive controller updated", "loss_rate", c.lossRate, "parity", c.parityCur)
	}

	if c.samples >= windowSize {
		c.samples = 0
		c.losses = 0
	}
}

// DirectSetLossRate jams the estimator to an exact value, bypassing the EMA,
// for deterministic simulation and tests.
func (c *Controller) DirectSetLossRate(r float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lossRate = r
	c.parityCur = c.clamp(c.recommend(r))
}

// RecommendedParity returns the parity shard count for the next transfer.
func (c *Controller) RecommendedParity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parityCur
}

func (c *Controller) recommend(lossRate float64) int {
	for _, step := range c.thresholds {
		if lossRate <= step.maxLoss {
			return step.parity
		}
	}
	return c.overflow
}

func (c *Controller) clamp(p int) int {
	if p < c.minParity {
		return c.minParity
	}
	if p > c.maxParity {
		return c.maxParity
	}
	return p
}

// Status is the read-out exposed to the metrics snapshot surface.
type Status struct {
	DataShards         int
	ParityCurrent      int
	ObservedLossRate   float64
	OverheadPercent    float64
	RecoveryCapability float64
}

// Status snapshots the controller's current recommendation and derived
// overhead/recovery figures.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := c.dataShards
	p := c.parityCur
	var pct float64
	if d+p > 0 {
		pct = float64(p) / float64(d+p) * 100
	}

	return Status{
		DataShards:         d,
		ParityCurrent:      p,
		ObservedLossRate:   c.lossRate,
		OverheadPercent:    pct,
		RecoveryCapability: pct,
	}
}
