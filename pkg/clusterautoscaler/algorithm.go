package clusterautoscaler

import "github.com/cuemby/orbitsim/pkg/types"

// Algorithm is the pluggable scale-up/scale-down strategy (spec §4.5),
// expressed as a narrow capability pair the same way scheduler.Algorithm
// pairs Filter and Score.
type Algorithm interface {
	// TryScaleUp returns how many default nodes would be needed to
	// accommodate pending, or 0 to decline.
	TryScaleUp(pending []*types.Pod, defaultCPU, defaultMemory, now float64) int
	// TryScaleDown returns node ids that have been idle long enough to
	// remove, bounded by maxEmptyBulkDelete.
	TryScaleDown(working map[string]*types.Node, now float64) []string
}

type simpleNode struct {
	cpuAllocated, memoryAllocated float64
	cpuTotal, memoryTotal         float64
}

// SimpleAlgorithm is a direct port of
// original_source/src/default_cluster_autoscaler_algorithms/default_simple_algorithm.rs:
// first-fit-decreasing online bin packing for scale-up, and an
// idle-duration tracking map for scale-down.
type SimpleAlgorithm struct {
	scaleDownUnneededTime float64
	maxEmptyBulkDelete    int
	scaleUpDelay          float64

	lastScaleUpTime float64
	nodeUnneededAt  map[string]float64
}

// NewSimpleAlgorithm constructs the default cluster-autoscaler strategy.
func NewSimpleAlgorithm(scaleDownUnneededTime float64, maxEmptyBulkDelete int, scaleUpDelay float64) *SimpleAlgorithm {
	return &SimpleAlgorithm{
		scaleDownUnneededTime: scaleDownUnneededTime,
		maxEmptyBulkDelete:    maxEmptyBulkDelete,
		scaleUpDelay:          scaleUpDelay,
		nodeUnneededAt:        make(map[string]float64),
	}
}

// TryScaleUp implements the online first-fit-decreasing simulation: start
// with one empty default node, and for every pending pod either place it
// on the node leaving the largest combined free fraction or open a fresh
// default node.
func (a *SimpleAlgorithm) TryScaleUp(pending []*types.Pod, defaultCPU, defaultMemory, now float64) int {
	if len(pending) == 0 {
		return 0
	}
	if a.lastScaleUpTime+a.scaleUpDelay > now {
		return 0
	}
	a.lastScaleUpTime = now

	nodes := []simpleNode{{cpuTotal: defaultCPU, memoryTotal: defaultMemory}}
	for _, pod := range pending {
		bestIdx := -1
		bestFraction := -1.0
		for i, n := range nodes {
			if n.cpuAllocated+pod.RequestedCPU > n.cpuTotal || n.memoryAllocated+pod.RequestedMemory > n.memoryTotal {
				continue
			}
			cpuUtil := (n.cpuAllocated + pod.RequestedCPU) / n.cpuTotal
			memUtil := (n.memoryAllocated + pod.RequestedMemory) / n.memoryTotal
			fraction := (1 - cpuUtil) + (1 - memUtil)
			if fraction > bestFraction {
				bestFraction = fraction
				bestIdx = i
			}
		}
		if bestIdx == -1 {
			nodes = append(nodes, simpleNode{
				cpuTotal: defaultCPU, memoryTotal: defaultMemory,
				cpuAllocated: pod.RequestedCPU, memoryAllocated: pod.RequestedMemory,
			})
			continue
		}
		nodes[bestIdx].cpuAllocated += pod.RequestedCPU
		nodes[bestIdx].memoryAllocated += pod.RequestedMemory
	}
	return len(nodes)
}

// TryScaleDown advances the idle-duration tracking map and returns up to
// maxEmptyBulkDelete node ids that have been idle for at least
// scaleDownUnneededTime.
func (a *SimpleAlgorithm) TryScaleDown(working map[string]*types.Node, now float64) []string {
	for id := range a.nodeUnneededAt {
		n, ok := working[id]
		if !ok || !n.IsIdle() {
			delete(a.nodeUnneededAt, id)
		}
	}

	var toRemove []string
	for id, n := range working {
		if !n.IsIdle() {
			continue
		}
		since, tracked := a.nodeUnneededAt[id]
		if !tracked {
			a.nodeUnneededAt[id] = now
			continue
		}
		if now-since >= a.scaleDownUnneededTime {
			toRemove = append(toRemove, id)
			if len(toRemove) == a.maxEmptyBulkDelete {
				break
			}
		}
	}
	for _, id := range toRemove {
		delete(a.nodeUnneededAt, id)
	}
	return toRemove
}
