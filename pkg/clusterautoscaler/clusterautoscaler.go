// Package clusterautoscaler implements scale-up from pending-pod
// pressure and scale-down from sustained node idleness (spec §4.5),
// grounded on original_source/src/cluster_autoscaler.rs.
package clusterautoscaler

import (
	"github.com/cuemby/orbitsim/pkg/config"
	"github.com/cuemby/orbitsim/pkg/kernel"
	"github.com/cuemby/orbitsim/pkg/log"
	"github.com/cuemby/orbitsim/pkg/metrics"
	"github.com/cuemby/orbitsim/pkg/simevents"
	"github.com/cuemby/orbitsim/pkg/types"
	"github.com/rs/zerolog"
)

// PendingPods is the read-only view of the scheduler's unschedulable
// queue the cluster autoscaler scans.
type PendingPods interface {
	UnschedulablePods() []*types.Pod
}

// WorkingNodes is the read-only view of the API server's working-node
// set the cluster autoscaler scans for idle capacity.
type WorkingNodes interface {
	WorkingNodes() map[string]*types.Node
}

// ClusterAutoscaler runs a periodic scan that tries to scale up first,
// and only scans for scale-down candidates if scale-up declined.
type ClusterAutoscaler struct {
	addr kernel.Addr
	cfg  config.Config
	algo Algorithm
	log  zerolog.Logger

	scheduler PendingPods
	nodes     WorkingNodes
}

// New constructs a ClusterAutoscaler bound to addr.
func New(addr kernel.Addr, cfg config.Config, algo Algorithm, scheduler PendingPods, nodes WorkingNodes) *ClusterAutoscaler {
	return &ClusterAutoscaler{
		addr:      addr,
		cfg:       cfg,
		algo:      algo,
		log:       log.WithComponent("cluster-autoscaler"),
		scheduler: scheduler,
		nodes:     nodes,
	}
}

// StartScanTimer kicks off the periodic scan. Call once at wiring time.
func (c *ClusterAutoscaler) StartScanTimer(k *kernel.Kernel) {
	k.Emit(c.addr, c.addr, simevents.ClusterAutoscalerScan{}, c.cfg.ClusterAutoscalerScanInterval)
}

// HandleEvent implements kernel.Handler.
func (c *ClusterAutoscaler) HandleEvent(k *kernel.Kernel, ev kernel.Event) {
	switch ev.Data.(type) {
	case simevents.ClusterAutoscalerScan:
		timer := metrics.NewTimer()
		scaledUp := c.tryScaleUp(k)
		if !scaledUp {
			c.tryScaleDown(k)
		}
		timer.ObserveDuration(metrics.ClusterAutoscalerScanDuration)
		k.Emit(c.addr, c.addr, simevents.ClusterAutoscalerScan{}, c.cfg.ClusterAutoscalerScanInterval)
	}
}

func (c *ClusterAutoscaler) tryScaleUp(k *kernel.Kernel) bool {
	pending := c.scheduler.UnschedulablePods()
	cnt := c.algo.TryScaleUp(pending, c.cfg.DefaultNode.CPU, c.cfg.DefaultNode.Memory, k.CurrentTime())
	if cnt <= 0 {
		return false
	}
	c.log.Info().Int("nodes", cnt).Msg("scaling up")
	k.Emit(c.addr, simevents.AddrAPIServer, simevents.AllocateNewDefaultNodes{Count: cnt}, c.cfg.DefaultNodeAllocationTime)
	metrics.NodesAllocatedTotal.Add(float64(cnt))
	return true
}

func (c *ClusterAutoscaler) tryScaleDown(k *kernel.Kernel) {
	candidates := c.algo.TryScaleDown(c.nodes.WorkingNodes(), k.CurrentTime())
	for _, id := range candidates {
		c.log.Info().Str("node_id", id).Msg("scaling down idle node")
		k.Emit(c.addr, simevents.AddrAPIServer, simevents.RemoveNode{NodeID: id}, c.cfg.NodeStopDuration)
		metrics.NodesRemovedTotal.Inc()
	}
}
