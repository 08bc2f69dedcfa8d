package evaluation

import (
	"fmt"
	"time"
)

// GuardrailConfig holds the minimum quality a ranking change must keep.
// Zero values disable the matching check.
type GuardrailConfig struct {
	MinRecallAt10     float64
	MinMRRAt10        float64
	MinNDCGAt10       float64
	MaxZeroResultRate float64
	MaxAvgLatency     time.Duration
	MaxFailedQueries  int
}

// DefaultGuardrails are the gates the evaluate command applies unless overridden
func DefaultGuardrails() GuardrailConfig {
	return GuardrailConfig{
		MinRecallAt10:     0.7,
		MinMRRAt10:        0.6,
		MaxZeroResultRate: 0.1,
		MaxAvgLatency:     200 * time.Millisecond,
	}
}

type Guardrails struct {
	config GuardrailConfig
}

func NewGuardrails(config GuardrailConfig) *Guardrails {
	if config.MaxFailedQueries < 0 {
		config.MaxFailedQueries = 0
	}
	return &Guardrails{config: config}
}

// Check returns one message per violated gate; empty means the run passes.
func (g *Guardrails) Check(s *EvalSummary) []string {
	var violations []string
	c := g.config

	if s.FailedQueries > c.MaxFailedQueries {
		violations = append(violations, fmt.Sprintf("%d queries failed (max %d)", s.FailedQueries, c.MaxFailedQueries))
	}
	if c.MinRecallAt10 > 0 && s.AvgRecallAt10 < c.MinRecallAt10 {
		violations = append(violations, fmt.Sprintf("recall@10 %.3f below %.3f", s.AvgRecallAt10, c.MinRecallAt10))
	}
	if c.MinMRRAt10 > 0 && s.AvgMRRAt10 < c.MinMRRAt10 {
		violations = append(violations, fmt.Sprintf("mrr@10 %.3f below %.3f", s.AvgMRRAt10, c.MinMRRAt10))
	}
	if c.MinNDCGAt10 > 0 && s.AvgNDCGAt10 < c.MinNDCGAt10 {
		violations = append(violations, fmt.Sprintf("ndcg@10 %.3f below %.3f", s.AvgNDCGAt10, c.MinNDCGAt10))
	}
	if c.MaxZeroResultRate > 0 && s.ZeroResultRate > c.MaxZeroResultRate {
		violations = append(violations, fmt.Sprintf("zero result rate %.3f above %.3f", s.ZeroResultRate, c.MaxZeroResultRate))
	}
	if c.MaxAvgLatency > 0 && s.AvgLatency > c.MaxAvgLatency {
		violations = append(violations, fmt.Sprintf("avg latency %s above %s", s.AvgLatency, c.MaxAvgLatency))
	}
	return violations
}

// Passed reports whether the summary clears every gate
func (g *Guardrails) Passed(s *EvalSummary) bool {
	return len(g.Check(s)) == 0
}
