package horizontalautoscaler

import (
	"math"

	"github.com/cuemby/orbitsim/pkg/metricsserver"
	"github.com/cuemby/orbitsim/pkg/types"
)

// ControlledResource selects which resource(s) the replica-count
// decision is driven by (spec §4.8).
type ControlledResource int

const (
	CPUOnly ControlledResource = iota
	MemoryOnly
	CPUAndMemory
)

// Algorithm is the pluggable horizontal-scaling strategy, a direct
// generalization of
// original_source/src/default_horizontal_autoscaler_algorithms/default_horizontal_algorithm.rs's
// ResourcesHorizontalAutoscalerAlgorithm onto spec §4.8's
// last-snapshot-averaged redesign.
type Algorithm interface {
	GetNewReplicaCount(d *types.Deployment, stats []*metricsserver.PodStatistics, now float64) int
}

// ResourcesAlgorithm targets a per-replica utilization fraction of the
// deployment's requested CPU and/or memory.
type ResourcesAlgorithm struct {
	Controlled        ControlledResource
	CPUUtilization    float64 // target fraction of requested CPU; 1.0 if zero
	MemoryUtilization float64 // target fraction of requested memory; 1.0 if zero
	MinReplicas       int
	MaxReplicas       int
}

// GetNewReplicaCount averages each replica's last snapshot, compares it
// against a utilization target, and proposes the replica count needed to
// bring utilization back to target, clamped to [MinReplicas,
// MaxReplicas]. The caller is responsible for the initialization-period
// gate described in spec §4.8 before calling this.
func (a ResourcesAlgorithm) GetNewReplicaCount(d *types.Deployment, stats []*metricsserver.PodStatistics, now float64) int {
	if len(stats) == 0 {
		return d.CntReplicas
	}

	var sumCPU, sumMem float64
	for _, st := range stats {
		sumCPU += st.LastSnapshot.CPU
		sumMem += st.LastSnapshot.Memory
	}
	avgCPU := sumCPU / float64(len(stats))
	avgMem := sumMem / float64(len(stats))

	cpuUtil := a.CPUUtilization
	if cpuUtil == 0 {
		cpuUtil = 1.0
	}
	memUtil := a.MemoryUtilization
	if memUtil == 0 {
		memUtil = 1.0
	}

	var newCnt int
	switch a.Controlled {
	case CPUOnly:
		newCnt = candidateCount(avgCPU, d.RequestedCPU*cpuUtil, d.CntReplicas)
	case MemoryOnly:
		newCnt = candidateCount(avgMem, d.RequestedMemory*memUtil, d.CntReplicas)
	case CPUAndMemory:
		newCnt = maxInt(
			candidateCount(avgCPU, d.RequestedCPU*cpuUtil, d.CntReplicas),
			candidateCount(avgMem, d.RequestedMemory*memUtil, d.CntReplicas),
		)
	}

	if newCnt < a.MinReplicas {
		newCnt = a.MinReplicas
	}
	if a.MaxReplicas > 0 && newCnt > a.MaxReplicas {
		newCnt = a.MaxReplicas
	}
	return newCnt
}

func candidateCount(avg, target float64, currentReplicas int) int {
	if target <= 0 {
		return currentReplicas
	}
	return int(math.Ceil(avg / target * float64(currentReplicas)))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
