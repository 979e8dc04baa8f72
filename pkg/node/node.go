// Package node implements resource accounting, pod admission, periodic
// reconciliation, and memory-pressure eviction for a single node
// (spec §4.4). Each node is its own addressable kernel component so it
// can run its own periodic reconciliation tick independent of every
// other node; the API server still holds the canonical *types.Node
// pointer in its maps and may read or mutate it synchronously within its
// own handlers, per the single-threaded aliasing policy the design notes
// describe.
package node

import (
	"github.com/cuemby/orbitsim/pkg/config"
	"github.com/cuemby/orbitsim/pkg/kernel"
	"github.com/cuemby/orbitsim/pkg/log"
	"github.com/cuemby/orbitsim/pkg/metrics"
	"github.com/cuemby/orbitsim/pkg/simevents"
	"github.com/cuemby/orbitsim/pkg/types"
	"github.com/rs/zerolog"
)

// Component wraps a *types.Node with the kernel wiring needed to receive
// placement requests, run periodic reconciliation, and apply vertical
// resize recommendations.
type Component struct {
	Node *types.Node

	addr kernel.Addr
	cfg  config.Config
	log  zerolog.Logger
}

// New constructs a Component for an already-created node. Callers must
// still Register it with the kernel and call StartReconcileTimer.
func New(n *types.Node, cfg config.Config) *Component {
	return &Component{
		Node: n,
		addr: kernel.Addr(n.ID),
		cfg:  cfg,
		log:  log.WithNodeID(n.ID),
	}
}

// Addr returns the component's kernel mailbox address (its node id).
func (c *Component) Addr() kernel.Addr { return c.addr }

// StartReconcileTimer kicks off the periodic reconciliation tick. Call
// once at wiring time.
func (c *Component) StartReconcileTimer(k *kernel.Kernel) {
	k.Emit(c.addr, c.addr, simevents.NodeReconcile{}, c.cfg.UpdatePodsResourcesPeriod)
}

// HandleEvent implements kernel.Handler.
func (c *Component) HandleEvent(k *kernel.Kernel, ev kernel.Event) {
	switch data := ev.Data.(type) {
	case simevents.PodPlacementRequest:
		c.handlePlacement(k, data.Pod)
	case simevents.NodeReconcile:
		c.reconcile(k)
		k.Emit(c.addr, c.addr, simevents.NodeReconcile{}, c.cfg.UpdatePodsResourcesPeriod)
	case simevents.PodRequestAndLimitsChange:
		c.handleResize(k, data)
	}
}

func (c *Component) handlePlacement(k *kernel.Kernel, pod *types.Pod) {
	if c.Node.State != types.NodeWorking {
		k.Emit(c.addr, simevents.AddrAPIServer, simevents.PodPlacementFailed{Pod: pod, NodeID: c.Node.ID}, c.cfg.MessageDelay)
		return
	}
	if !AddPod(c.Node, pod, k.CurrentTime()) {
		k.Emit(c.addr, simevents.AddrAPIServer, simevents.PodPlacementFailed{Pod: pod, NodeID: c.Node.ID}, c.cfg.MessageDelay)
		return
	}
	c.log.Debug().Str("pod_id", pod.ID).Msg("pod admitted")
	k.Emit(c.addr, simevents.AddrAPIServer, simevents.PodPlacementSucceeded{PodID: pod.ID, NodeID: c.Node.ID}, c.cfg.MessageDelay)
}

func (c *Component) handleResize(k *kernel.Kernel, chg simevents.PodRequestAndLimitsChange) {
	pod, ok := c.Node.Pods[chg.PodID]
	if !ok {
		return
	}
	RemovePod(c.Node, chg.PodID)
	pod.RequestedCPU = chg.NewRequestedCPU
	pod.LimitCPU = chg.NewLimitCPU
	pod.RequestedMemory = chg.NewRequestedMemory
	pod.LimitMemory = chg.NewLimitMemory
	k.Emit(c.addr, simevents.AddrAPIServer, simevents.PodAssigningRequest{Pod: pod}, c.cfg.MessageDelay)
}

func (c *Component) reconcile(k *kernel.Kernel) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.NodeReconciliationDuration)

	now := k.CurrentTime()
	var evicted []*types.Pod
	for id, pod := range c.Node.Pods {
		evict := reconcilePodMemory(c.Node, pod, now)
		reconcilePodCPU(c.Node, pod, now)
		if evict {
			evicted = append(evicted, c.Node.Pods[id])
		}
	}
	for _, pod := range evicted {
		RemovePod(c.Node, pod.ID)
		metrics.PodMigrationsTotal.Inc()
		k.Emit(c.addr, simevents.AddrAPIServer, simevents.PodMigrationRequest{Pod: pod, SourceNodeID: c.Node.ID}, c.cfg.MessageDelay)
	}
}

func replicaCount(pod *types.Pod) int {
	if pod.ReplicaCount <= 0 {
		return 1
	}
	return pod.ReplicaCount
}

// reconcilePodMemory recomputes wanted memory from the pod's load model.
// If the growth exceeds the node's free headroom it reports true so the
// caller evicts the pod; otherwise it applies the new allocation in
// place.
func reconcilePodMemory(n *types.Node, pod *types.Pod, now float64) bool {
	wanted := pod.MemoryLoadModel.Resource(now, now-pod.StartTime, replicaCount(pod))
	if wanted > pod.LimitMemory {
		wanted = pod.LimitMemory
	}
	oldContribution := maxf(pod.Memory, pod.RequestedMemory)
	newContribution := maxf(wanted, pod.RequestedMemory)
	growth := newContribution - oldContribution
	if growth > n.FreeMemory() {
		return true
	}
	n.MemoryAllocated += growth
	n.MemoryUsed += wanted - pod.Memory
	pod.Memory = wanted
	if wanted > pod.RequestedMemory {
		n.MemoryOveruseCount++
		metrics.MemoryOveruseEventsTotal.Inc()
	}
	return false
}

// reconcilePodCPU recomputes wanted CPU from the pod's load model,
// capping growth to the node's free CPU. CPU pressure never evicts.
func reconcilePodCPU(n *types.Node, pod *types.Pod, now float64) {
	wanted := pod.CPULoadModel.Resource(now, now-pod.StartTime, replicaCount(pod))
	if wanted > pod.LimitCPU {
		wanted = pod.LimitCPU
	}
	oldContribution := maxf(pod.CPU, pod.RequestedCPU)
	capped := wanted
	if maxf(capped, pod.RequestedCPU)-oldContribution > n.FreeCPU() {
		capped = oldContribution + n.FreeCPU()
		if capped < pod.RequestedCPU {
			capped = pod.RequestedCPU
		}
	}
	newContribution := maxf(capped, pod.RequestedCPU)
	n.CPUAllocated += newContribution - oldContribution
	n.CPUUsed += capped - pod.CPU
	pod.CPU = capped
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// AddPod admits pod onto n if capacity allows, mutating both in place
// and returning true on success. See spec §4.4 Admission.
func AddPod(n *types.Node, pod *types.Pod, now float64) bool {
	if n.FreeCPU() < pod.RequestedCPU || n.FreeMemory() < pod.RequestedMemory {
		return false
	}

	wantedMemory := pod.MemoryLoadModel.Resource(now, 0, replicaCount(pod))
	if wantedMemory > pod.LimitMemory {
		wantedMemory = pod.LimitMemory
	}

	wantedCPU := pod.CPULoadModel.Resource(now, 0, replicaCount(pod))
	if wantedCPU > pod.LimitCPU {
		wantedCPU = pod.LimitCPU
	}
	if wantedCPU > n.FreeCPU() {
		wantedCPU = n.FreeCPU()
	}

	pod.StartTime = now
	pod.CPU = wantedCPU
	pod.Memory = wantedMemory
	pod.Phase = types.PodPlaced

	n.CPUAllocated += maxf(pod.CPU, pod.RequestedCPU)
	n.MemoryAllocated += maxf(pod.Memory, pod.RequestedMemory)
	n.CPUUsed += pod.CPU
	n.MemoryUsed += pod.Memory

	n.Pods[pod.ID] = pod
	return true
}

// RemovePod subtracts pod's current and requested contributions from n
// and drops it from the resident map, per spec §4.4 Removal. It is a
// no-op if the pod is not resident.
func RemovePod(n *types.Node, podID string) {
	pod, ok := n.Pods[podID]
	if !ok {
		return
	}
	n.CPUAllocated -= maxf(pod.CPU, pod.RequestedCPU)
	n.MemoryAllocated -= maxf(pod.Memory, pod.RequestedMemory)
	n.CPUUsed -= pod.CPU
	n.MemoryUsed -= pod.Memory
	delete(n.Pods, podID)
	pod.ClearUsage()
}

// Fail transitions n to Failed, draining resident pods and zeroing load
// counters. Returns the pods that were resident so the caller can
// re-enqueue them for scheduling.
func Fail(n *types.Node) []*types.Pod {
	pods := make([]*types.Pod, 0, len(n.Pods))
	for _, pod := range n.Pods {
		pods = append(pods, pod)
	}
	for _, pod := range pods {
		pod.ClearUsage()
		delete(n.Pods, pod.ID)
	}
	n.State = types.NodeFailed
	n.CPUAllocated, n.MemoryAllocated, n.CPUUsed, n.MemoryUsed = 0, 0, 0, 0
	return pods
}

// Restore transitions a failed, now-empty node back to Working.
func Restore(n *types.Node) {
	n.State = types.NodeWorking
}
