package scheduler

import (
	"testing"

	"github.com/cuemby/orbitsim/pkg/types"
	"github.com/stretchr/testify/assert"
)

func node(cpu, mem, allocCPU, allocMem float64) *types.Node {
	n := types.NewNode(cpu, mem)
	n.CPUAllocated = allocCPU
	n.MemoryAllocated = allocMem
	return n
}

func TestFilterExcludesInsufficientCapacity(t *testing.T) {
	pod := &types.Pod{RequestedCPU: 4, RequestedMemory: 10}
	nodes := []*types.Node{
		node(20, 20, 0, 0),
		node(2, 20, 0, 0),
	}
	out := MostRequestedPriority{}.Filter(pod, nodes, nil)
	assert.Len(t, out, 1)
	assert.Same(t, nodes[0], out[0])
}

func TestFilterExcludesFailedNodes(t *testing.T) {
	pod := &types.Pod{RequestedCPU: 1, RequestedMemory: 1}
	n := node(20, 20, 0, 0)
	n.State = types.NodeFailed
	out := MostRequestedPriority{}.Filter(pod, []*types.Node{n}, nil)
	assert.Empty(t, out)
}

func TestFilterExcludesMemoryPressure(t *testing.T) {
	pod := &types.Pod{RequestedCPU: 1, RequestedMemory: 1}
	n := node(20, 20, 0, 0)
	pressure := func(n *types.Node, p *types.Pod) bool { return true }
	out := MostRequestedPriority{}.Filter(pod, []*types.Node{n}, pressure)
	assert.Empty(t, out)
}

func TestMRPFavorsMoreUtilizedNode(t *testing.T) {
	pod := &types.Pod{RequestedCPU: 1, RequestedMemory: 1}
	emptyNode := node(20, 20, 0, 0)
	busyNode := node(20, 20, 15, 15)
	scores := MostRequestedPriority{}.Score(pod, []*types.Node{emptyNode, busyNode})
	assert.Greater(t, scores[1], scores[0])
}

func TestLRPFavorsLessUtilizedNode(t *testing.T) {
	pod := &types.Pod{RequestedCPU: 1, RequestedMemory: 1}
	emptyNode := node(20, 20, 0, 0)
	busyNode := node(20, 20, 15, 15)
	scores := LeastRequestedPriority{}.Score(pod, []*types.Node{emptyNode, busyNode})
	assert.Greater(t, scores[0], scores[1])
}
