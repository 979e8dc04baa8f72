package scheduler

import "github.com/cuemby/orbitsim/pkg/types"

// Algorithm is the pluggable filter/score capability pair a Scheduler is
// configured with. filter narrows working nodes down to ones that could
// host the pod; score ranks the filtered set, highest wins.
type Algorithm interface {
	Filter(pod *types.Pod, nodes []*types.Node, wouldPressure func(n *types.Node, p *types.Pod) bool) []*types.Node
	Score(pod *types.Pod, candidates []*types.Node) []float64
}

func canFit(n *types.Node, p *types.Pod) bool {
	return n.FreeCPU() >= p.RequestedCPU && n.FreeMemory() >= p.RequestedMemory
}

func filterCommon(pod *types.Pod, nodes []*types.Node, wouldPressure func(n *types.Node, p *types.Pod) bool) []*types.Node {
	var out []*types.Node
	for _, n := range nodes {
		if n.State != types.NodeWorking {
			continue
		}
		if !canFit(n, pod) {
			continue
		}
		if wouldPressure != nil && wouldPressure(n, pod) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// MostRequestedPriority scores nodes higher when they would end up more
// utilized after placement, packing load onto fewer nodes.
type MostRequestedPriority struct{}

func (MostRequestedPriority) Filter(pod *types.Pod, nodes []*types.Node, wouldPressure func(*types.Node, *types.Pod) bool) []*types.Node {
	return filterCommon(pod, nodes, wouldPressure)
}

func (MostRequestedPriority) Score(pod *types.Pod, candidates []*types.Node) []float64 {
	scores := make([]float64, len(candidates))
	for i, n := range candidates {
		cpuAfter := (n.CPUAllocated + pod.RequestedCPU) / n.CPUTotal
		memAfter := (n.MemoryAllocated + pod.RequestedMemory) / n.MemoryTotal
		scores[i] = 10*cpuAfter + 10*memAfter
	}
	return scores
}

// LeastRequestedPriority scores nodes higher when they would remain less
// utilized after placement, spreading load across nodes.
type LeastRequestedPriority struct{}

func (LeastRequestedPriority) Filter(pod *types.Pod, nodes []*types.Node, wouldPressure func(*types.Node, *types.Pod) bool) []*types.Node {
	return filterCommon(pod, nodes, wouldPressure)
}

func (LeastRequestedPriority) Score(pod *types.Pod, candidates []*types.Node) []float64 {
	scores := make([]float64, len(candidates))
	for i, n := range candidates {
		cpuFreeAfter := (n.CPUTotal - n.CPUAllocated - pod.RequestedCPU) / n.CPUTotal
		memFreeAfter := (n.MemoryTotal - n.MemoryAllocated - pod.RequestedMemory) / n.MemoryTotal
		scores[i] = (10*cpuFreeAfter + 10*memFreeAfter) / 2
	}
	return scores
}
