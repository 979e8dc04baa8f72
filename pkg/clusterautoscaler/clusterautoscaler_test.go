package clusterautoscaler

import (
	"testing"

	"github.com/cuemby/orbitsim/pkg/config"
	"github.com/cuemby/orbitsim/pkg/kernel"
	"github.com/cuemby/orbitsim/pkg/loadmodel"
	"github.com/cuemby/orbitsim/pkg/simevents"
	"github.com/cuemby/orbitsim/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScheduler struct {
	pending []*types.Pod
}

func (f *fakeScheduler) UnschedulablePods() []*types.Pod { return f.pending }

type fakeWorkingNodes struct {
	nodes map[string]*types.Node
}

func (f *fakeWorkingNodes) WorkingNodes() map[string]*types.Node { return f.nodes }

func TestScanScalesUpWhenPodsArePending(t *testing.T) {
	cfg := config.Default()
	cfg.ClusterAutoscalerScanInterval = 10
	sched := &fakeScheduler{pending: []*types.Pod{
		types.NewPod(2, 4, 2, 4, 1, &loadmodel.Constant{Resource_: 2}, &loadmodel.Constant{Resource_: 4}),
	}}
	nodes := &fakeWorkingNodes{nodes: map[string]*types.Node{}}
	algo := NewSimpleAlgorithm(cfg.ScaleDownUnneededTime, cfg.MaxEmptyBulkDelete, cfg.ScaleUpDelay)

	k := kernel.New()
	ca := New("ca", cfg, algo, sched, nodes)
	k.Register("ca", ca)

	var allocated *simevents.AllocateNewDefaultNodes
	k.Register(simevents.AddrAPIServer, kernel.HandlerFunc(func(k *kernel.Kernel, ev kernel.Event) {
		if a, ok := ev.Data.(simevents.AllocateNewDefaultNodes); ok {
			allocated = &a
		}
	}))

	k.Emit("test", "ca", simevents.ClusterAutoscalerScan{}, 0)
	k.StepUntilTime(cfg.DefaultNodeAllocationTime)

	require.NotNil(t, allocated)
	assert.Equal(t, 1, allocated.Count)
}

func TestScanScalesDownOnlyWhenScaleUpDeclines(t *testing.T) {
	cfg := config.Default()
	cfg.ScaleDownUnneededTime = 0
	sched := &fakeScheduler{}
	n := types.NewNode(8, 64)
	nodes := &fakeWorkingNodes{nodes: map[string]*types.Node{n.ID: n}}
	algo := NewSimpleAlgorithm(cfg.ScaleDownUnneededTime, cfg.MaxEmptyBulkDelete, cfg.ScaleUpDelay)

	k := kernel.New()
	ca := New("ca", cfg, algo, sched, nodes)
	k.Register("ca", ca)

	var removed *simevents.RemoveNode
	k.Register(simevents.AddrAPIServer, kernel.HandlerFunc(func(k *kernel.Kernel, ev kernel.Event) {
		if r, ok := ev.Data.(simevents.RemoveNode); ok {
			removed = &r
		}
	}))

	k.Emit("test", "ca", simevents.ClusterAutoscalerScan{}, 0)
	k.StepUntilTime(cfg.ClusterAutoscalerScanInterval + cfg.NodeStopDuration)

	require.NotNil(t, removed)
	assert.Equal(t, n.ID, removed.NodeID)
}
