// Package verticalautoscaler implements percentile-based request/limit
// recommendations (spec §4.7), grounded on
// original_source/src/vertical_autoscaler.rs.
package verticalautoscaler

import (
	"github.com/cuemby/orbitsim/pkg/config"
	"github.com/cuemby/orbitsim/pkg/kernel"
	"github.com/cuemby/orbitsim/pkg/log"
	"github.com/cuemby/orbitsim/pkg/metrics"
	"github.com/cuemby/orbitsim/pkg/metricsserver"
	"github.com/cuemby/orbitsim/pkg/simevents"
	"github.com/cuemby/orbitsim/pkg/types"
	"github.com/rs/zerolog"
)

// PodLocator is the read-only view of API-server state the vertical
// autoscaler needs: the pod→node map plus lookups into both.
type PodLocator interface {
	PodToNode() map[string]string
	Node(id string) (*types.Node, bool)
	Pod(id string) (*types.Pod, bool)
}

// Statistics is the metrics server's read-only query surface.
type Statistics interface {
	Statistic(podID string) (*metricsserver.PodStatistics, bool)
}

// VerticalAutoscaler drives the periodic recommendation cycle.
type VerticalAutoscaler struct {
	addr kernel.Addr
	cfg  config.Config
	algo Algorithm
	log  zerolog.Logger

	apiServer PodLocator
	stats     Statistics
}

// New constructs a VerticalAutoscaler bound to addr.
func New(addr kernel.Addr, cfg config.Config, algo Algorithm, apiServer PodLocator, stats Statistics) *VerticalAutoscaler {
	return &VerticalAutoscaler{
		addr:      addr,
		cfg:       cfg,
		algo:      algo,
		log:       log.WithComponent("vertical-autoscaler"),
		apiServer: apiServer,
		stats:     stats,
	}
}

// StartCycleTimer kicks off the periodic recommendation cycle. Call once
// at wiring time.
func (v *VerticalAutoscaler) StartCycleTimer(k *kernel.Kernel) {
	k.Emit(v.addr, v.addr, simevents.VerticalAutoscalerCycle{}, v.cfg.VPAInterval)
}

// HandleEvent implements kernel.Handler.
func (v *VerticalAutoscaler) HandleEvent(k *kernel.Kernel, ev kernel.Event) {
	switch ev.Data.(type) {
	case simevents.VerticalAutoscalerCycle:
		timer := metrics.NewTimer()
		v.runCycle(k)
		timer.ObserveDuration(metrics.VerticalAutoscalerCycleDuration)
		k.Emit(v.addr, v.addr, simevents.VerticalAutoscalerCycle{}, v.cfg.VPAInterval)
	}
}

func (v *VerticalAutoscaler) runCycle(k *kernel.Kernel) {
	for podID := range v.apiServer.PodToNode() {
		pod, ok := v.apiServer.Pod(podID)
		if !ok {
			continue
		}
		stat, ok := v.stats.Statistic(podID)
		if !ok {
			continue
		}
		rec := v.algo.GetRecommendation(pod, stat)
		if rec == nil {
			continue
		}
		nodeID, ok := v.apiServer.PodToNode()[podID]
		if !ok {
			continue
		}
		node, ok := v.apiServer.Node(nodeID)
		if !ok {
			continue
		}
		if !v.algo.TryApplyRecommendation(pod, node, rec) {
			continue
		}
		metrics.VerticalRecommendationsTotal.Inc()
		k.Emit(v.addr, kernel.Addr(nodeID), simevents.PodRequestAndLimitsChange{
			PodID:              rec.PodID,
			NewRequestedCPU:    rec.NewRequestedCPU,
			NewLimitCPU:        rec.NewLimitCPU,
			NewRequestedMemory: rec.NewRequestedMemory,
			NewLimitMemory:     rec.NewLimitMemory,
		}, v.cfg.MessageDelay*2)
	}
}
