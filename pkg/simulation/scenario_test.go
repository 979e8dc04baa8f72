package simulation

import (
	"testing"

	"github.com/cuemby/orbitsim/pkg/config"
	"github.com/cuemby/orbitsim/pkg/horizontalautoscaler"
	"github.com/cuemby/orbitsim/pkg/loadmodel"
	"github.com/cuemby/orbitsim/pkg/scheduler"
	"github.com/cuemby/orbitsim/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nodeLoads returns (cpu_allocated, memory_allocated) for each of the
// given node ids, in the same order.
func nodeLoads(t *testing.T, s *Simulation, ids []string) [][2]float64 {
	t.Helper()
	out := make([][2]float64, len(ids))
	for i, id := range ids {
		n, ok := s.Node(id)
		require.True(t, ok)
		out[i] = [2]float64{n.CPUAllocated, n.MemoryAllocated}
	}
	return out
}

// TestScenarioA_MRPPacksOntoOneNode mirrors the distilled spec's Scenario
// A: with MostRequestedPriority scoring, two identical pods land on the
// same node, never spreading while the other has capacity.
func TestScenarioA_MRPPacksOntoOneNode(t *testing.T) {
	s := New(config.Default(), Options{SchedulerAlgorithm: scheduler.MostRequestedPriority{}})
	n1 := s.AddNode(20, 20)
	n2 := s.AddNode(20, 20)
	ids := []string{n1, n2}

	s.SubmitPod(4, 10, 4, 10, 100, &loadmodel.Constant{Resource_: 4}, &loadmodel.Constant{Resource_: 10}, 1)
	s.StepForDuration(100)

	loads := nodeLoads(t, s, ids)
	busy, idle := loads[0], loads[1]
	if busy == ([2]float64{0, 0}) {
		busy, idle = idle, busy
	}
	assert.Equal(t, [2]float64{4, 10}, busy)
	assert.Equal(t, [2]float64{0, 0}, idle)

	s.SubmitPod(4, 5, 4, 5, 100, &loadmodel.Constant{Resource_: 4}, &loadmodel.Constant{Resource_: 5}, 1)
	s.StepForDuration(100)

	loads = nodeLoads(t, s, ids)
	total := [2]float64{loads[0][0] + loads[1][0], loads[0][1] + loads[1][1]}
	assert.Equal(t, [2]float64{8, 15}, total)
	// MRP keeps packing: one node now carries everything, the other stays idle.
	busy, idle = loads[0], loads[1]
	if busy == ([2]float64{0, 0}) {
		busy, idle = idle, busy
	}
	assert.Equal(t, [2]float64{8, 15}, busy)
	assert.Equal(t, [2]float64{0, 0}, idle)
}

// TestScenarioB_LRPSpreads mirrors Scenario B: LeastRequestedPriority
// spreads the second pod onto the otherwise-idle node instead of packing.
func TestScenarioB_LRPSpreads(t *testing.T) {
	s := New(config.Default(), Options{SchedulerAlgorithm: scheduler.LeastRequestedPriority{}})
	n1 := s.AddNode(20, 20)
	n2 := s.AddNode(20, 20)
	ids := []string{n1, n2}

	s.SubmitPod(4, 10, 4, 10, 100, &loadmodel.Constant{Resource_: 4}, &loadmodel.Constant{Resource_: 10}, 1)
	s.StepForDuration(100)

	s.SubmitPod(4, 5, 4, 5, 100, &loadmodel.Constant{Resource_: 4}, &loadmodel.Constant{Resource_: 5}, 1)
	s.StepForDuration(100)

	loads := nodeLoads(t, s, ids)
	assert.ElementsMatch(t, [][2]float64{{4, 10}, {4, 5}}, loads)
}

// TestScenarioC_CrashFailover mirrors Scenario C: a crashed node's
// resident pod migrates to the surviving node, and crashing the new host
// while the first recovers moves it right back.
func TestScenarioC_CrashFailover(t *testing.T) {
	s := New(config.Default(), Options{})
	n1 := s.AddNode(20, 20)
	n2 := s.AddNode(20, 20)

	s.SubmitPod(5, 5, 5, 5, 0, &loadmodel.Constant{Resource_: 5}, &loadmodel.Constant{Resource_: 5}, 0)
	s.StepForDuration(10)

	// Find which node ended up hosting the pod.
	host, other := n1, n2
	hn, _ := s.Node(host)
	if hn.CPUAllocated == 0 {
		host, other = n2, n1
	}

	s.CrashNode(host, 0)
	s.StepForDuration(5)

	crashed, _ := s.Node(host)
	assert.Equal(t, types.NodeFailed, crashed.State)
	assert.Equal(t, 0.0, crashed.CPUAllocated)
	assert.Equal(t, 0.0, crashed.MemoryAllocated)

	s.StepForDuration(5)
	survivor, _ := s.Node(other)
	assert.Equal(t, 5.0, survivor.CPUAllocated)
	assert.Equal(t, 5.0, survivor.MemoryAllocated)

	s.RecoverNode(host, 0)
	s.CrashNode(other, 0)
	s.StepForDuration(10)

	recovered, _ := s.Node(host)
	assert.Equal(t, 5.0, recovered.CPUAllocated)
	assert.Equal(t, 5.0, recovered.MemoryAllocated)
}

// TestScenarioD_ClusterScalesUp mirrors Scenario D: starting from zero
// working nodes, a pending pod eventually forces a scale-up from the
// cloud pool and gets placed.
func TestScenarioD_ClusterScalesUp(t *testing.T) {
	s := New(config.Default(), Options{})
	s.SubmitPod(2, 6, 2, 6, 0, &loadmodel.Constant{Resource_: 2}, &loadmodel.Constant{Resource_: 6}, 0)
	s.StepForDuration(1000)

	assert.GreaterOrEqual(t, len(s.WorkingNodes()), 1)
	assert.Greater(t, s.CPULoadRate(), 0.0)
}

// TestScenarioE_ClusterScalesDown mirrors Scenario E: a lone idle node is
// removed once it has been empty for scale_down_unneeded_time.
func TestScenarioE_ClusterScalesDown(t *testing.T) {
	cfg := config.Default()
	cfg.ScaleDownUnneededTime = 600
	s := New(cfg, Options{})
	s.AddNode(20, 20)

	s.StepForDuration(700)

	assert.Len(t, s.WorkingNodes(), 0)
}

// TestScenarioF_VerticalAutoscalerShrinks mirrors Scenario F: a pod
// requesting far more than it actually uses gets its request recommended
// down toward its observed usage.
func TestScenarioF_VerticalAutoscalerShrinks(t *testing.T) {
	s := New(config.Default(), Options{})
	s.AddNode(20, 20)

	podID := s.SubmitPod(10, 10, 10, 10, 0, &loadmodel.Constant{Resource_: 1}, &loadmodel.Constant{Resource_: 1}, 0)
	s.StepForDuration(10 * 24 * 60 * 60)

	pod, ok := s.Pod(podID)
	require.True(t, ok)
	assert.Less(t, pod.RequestedCPU, 2.0)
	assert.Less(t, pod.RequestedMemory, 2.0)
}

// TestScenarioG_HorizontalAutoscalerScalesOut mirrors Scenario G: rising
// memory demand against a low utilization target drives the deployment's
// replica count up, diluting each replica's share of the load.
func TestScenarioG_HorizontalAutoscalerScalesOut(t *testing.T) {
	opts := Options{
		HorizontalAutoscalerAlgorithm: horizontalautoscaler.ResourcesAlgorithm{
			Controlled:        horizontalautoscaler.CPUAndMemory,
			CPUUtilization:    0.2,
			MemoryUtilization: 0.2,
			MinReplicas:       1,
			MaxReplicas:       20,
		},
	}
	cfg := config.Default()
	cfg.HPAInitializationPeriod = 60
	s := New(cfg, opts)
	s.AddNode(5, 20)
	s.AddNode(5, 20)

	depID := s.SubmitDeployment(5, 10, 5, 10, 0,
		&loadmodel.Constant{Resource_: 5},
		&loadmodel.Increase{IncreaseTime: 2000, StartResource: 1, EndResource: 10},
		1, 0)
	s.StepForDuration(3000)

	d, ok := s.Deployment(depID)
	require.True(t, ok)
	assert.Greater(t, d.CntReplicas, 1)

	for _, podID := range d.ReplicaIDs {
		pod, ok := s.Pod(podID)
		require.True(t, ok)
		assert.Greater(t, pod.ReplicaCount, 1)
	}
}
