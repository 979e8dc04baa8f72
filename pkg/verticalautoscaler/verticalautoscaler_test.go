package verticalautoscaler

import (
	"testing"

	"github.com/cuemby/orbitsim/pkg/config"
	"github.com/cuemby/orbitsim/pkg/histogram"
	"github.com/cuemby/orbitsim/pkg/kernel"
	"github.com/cuemby/orbitsim/pkg/metricsserver"
	"github.com/cuemby/orbitsim/pkg/simevents"
	"github.com/cuemby/orbitsim/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLocator struct {
	podToNode map[string]string
	nodes     map[string]*types.Node
	pods      map[string]*types.Pod
}

func (f *fakeLocator) PodToNode() map[string]string       { return f.podToNode }
func (f *fakeLocator) Node(id string) (*types.Node, bool) { n, ok := f.nodes[id]; return n, ok }
func (f *fakeLocator) Pod(id string) (*types.Pod, bool)   { p, ok := f.pods[id]; return p, ok }

type fakeStats struct {
	stats map[string]*metricsserver.PodStatistics
}

func (f *fakeStats) Statistic(podID string) (*metricsserver.PodStatistics, bool) {
	s, ok := f.stats[podID]
	return s, ok
}

type alwaysRecommend struct{}

func (alwaysRecommend) GetRecommendation(pod *types.Pod, stat *metricsserver.PodStatistics) *Recommendation {
	return &Recommendation{PodID: pod.ID, NewRequestedCPU: 1, NewLimitCPU: 2, NewRequestedMemory: 3, NewLimitMemory: 4}
}
func (alwaysRecommend) TryApplyRecommendation(pod *types.Pod, node *types.Node, rec *Recommendation) bool {
	return true
}

func TestCycleEmitsResizeForRecommendedPod(t *testing.T) {
	pod := samplePod(4, 8, 4, 8)
	n := types.NewNode(8, 64)
	locator := &fakeLocator{
		podToNode: map[string]string{pod.ID: n.ID},
		nodes:     map[string]*types.Node{n.ID: n},
		pods:      map[string]*types.Pod{pod.ID: pod},
	}
	stats := &fakeStats{stats: map[string]*metricsserver.PodStatistics{
		pod.ID: {CPU: histogram.New(10), Memory: histogram.New(10)},
	}}

	k := kernel.New()
	v := New("vpa", config.Default(), alwaysRecommend{}, locator, stats)
	k.Register("vpa", v)

	var change *simevents.PodRequestAndLimitsChange
	k.Register(kernel.Addr(n.ID), kernel.HandlerFunc(func(k *kernel.Kernel, ev kernel.Event) {
		if c, ok := ev.Data.(simevents.PodRequestAndLimitsChange); ok {
			change = &c
		}
	}))

	k.Emit("test", "vpa", simevents.VerticalAutoscalerCycle{}, 0)
	k.StepUntilTime(1)

	require.NotNil(t, change)
	assert.Equal(t, pod.ID, change.PodID)
	assert.Equal(t, 1.0, change.NewRequestedCPU)
}

func TestCycleSkipsPodWithoutStatistic(t *testing.T) {
	pod := samplePod(4, 8, 4, 8)
	n := types.NewNode(8, 64)
	locator := &fakeLocator{
		podToNode: map[string]string{pod.ID: n.ID},
		nodes:     map[string]*types.Node{n.ID: n},
		pods:      map[string]*types.Pod{pod.ID: pod},
	}
	stats := &fakeStats{stats: map[string]*metricsserver.PodStatistics{}}

	k := kernel.New()
	v := New("vpa", config.Default(), alwaysRecommend{}, locator, stats)
	k.Register("vpa", v)

	var sawChange bool
	k.Register(kernel.Addr(n.ID), kernel.HandlerFunc(func(k *kernel.Kernel, ev kernel.Event) {
		if _, ok := ev.Data.(simevents.PodRequestAndLimitsChange); ok {
			sawChange = true
		}
	}))

	k.Emit("test", "vpa", simevents.VerticalAutoscalerCycle{}, 0)
	k.StepUntilTime(1)
	assert.False(t, sawChange)
}
