package verticalautoscaler

import (
	"math"

	"github.com/cuemby/orbitsim/pkg/metricsserver"
	"github.com/cuemby/orbitsim/pkg/types"
)

const secondsPerDay = 60.0 * 60.0 * 24.0

const (
	lowerBoundPercentile  = 0.5
	targetPercentile      = 0.9
	upperBoundPercentile  = 0.95
)

// ControlledValuesMode selects whether a recommendation touches only
// requests or preserves the limit/request ratio as well.
type ControlledValuesMode int

const (
	RequestsOnly ControlledValuesMode = iota
	RequestsAndLimits
)

// Recommendation is the output of Algorithm.GetRecommendation: the new
// requested/limit amounts to apply to a pod, or nil if no change is
// warranted.
type Recommendation struct {
	PodID              string
	NewRequestedCPU    float64
	NewLimitCPU        float64
	NewRequestedMemory float64
	NewLimitMemory     float64
}

// Algorithm is the pluggable vertical-recommendation strategy (spec
// §4.7), with a veto hook the caller runs before applying a change.
type Algorithm interface {
	GetRecommendation(pod *types.Pod, stat *metricsserver.PodStatistics) *Recommendation
	TryApplyRecommendation(pod *types.Pod, node *types.Node, rec *Recommendation) bool
}

// AutoAlgorithm is a direct port of
// original_source/src/default_vertical_autoscaler_algorithms/default_auto_algorithm.rs:
// percentile-multiplier stability bounds scaled by observed history
// length in days.
type AutoAlgorithm struct {
	ControlledValues ControlledValuesMode
}

// GetRecommendation computes stability multipliers from the histogram's
// history-time expressed in days and proposes new requested (and, in
// RequestsAndLimits mode, limit) amounts whenever the current request
// falls outside the upper/lower bound band.
func (a AutoAlgorithm) GetRecommendation(pod *types.Pod, stat *metricsserver.PodStatistics) *Recommendation {
	days := stat.CPU.HistoryTime() / secondsPerDay
	if days <= 0 {
		return nil
	}
	upper := 1.0 + 1.0/days
	lower := math.Pow(1.0+0.001/days, -2)

	rec := &Recommendation{
		PodID:              pod.ID,
		NewRequestedCPU:    pod.RequestedCPU,
		NewLimitCPU:        pod.LimitCPU,
		NewRequestedMemory: pod.RequestedMemory,
		NewLimitMemory:     pod.LimitMemory,
	}
	changed := false

	if p95CPU := stat.CPU.Percentile(upperBoundPercentile); pod.RequestedCPU > upper*p95CPU || pod.RequestedCPU < lower*stat.CPU.Percentile(lowerBoundPercentile) {
		rec.NewRequestedCPU = stat.CPU.Percentile(targetPercentile)
		if a.ControlledValues == RequestsAndLimits && pod.RequestedCPU > 0 {
			rec.NewLimitCPU = rec.NewRequestedCPU * (pod.LimitCPU / pod.RequestedCPU)
		}
		changed = true
	}

	if p95Mem := stat.Memory.Percentile(upperBoundPercentile); pod.RequestedMemory > upper*p95Mem || pod.RequestedMemory < lower*stat.Memory.Percentile(lowerBoundPercentile) {
		rec.NewRequestedMemory = stat.Memory.Percentile(targetPercentile)
		if a.ControlledValues == RequestsAndLimits && pod.RequestedMemory > 0 {
			rec.NewLimitMemory = rec.NewRequestedMemory * (pod.LimitMemory / pod.RequestedMemory)
		}
		changed = true
	}

	if !changed {
		return nil
	}
	return rec
}

// TryApplyRecommendation never vetoes; the hook exists so custom
// algorithms can plug in admission logic (e.g. pod disruption budgets).
func (a AutoAlgorithm) TryApplyRecommendation(pod *types.Pod, node *types.Node, rec *Recommendation) bool {
	return true
}
