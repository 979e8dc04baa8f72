// Package horizontalautoscaler implements utilization-targeted
// replica-count recommendations (spec §4.8), grounded on
// original_source/src/horizontal_autoscaler.rs.
package horizontalautoscaler

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

// Deployments is the read-only deployment view the horizontal
// autoscaler scans.
type Deployments interface {
	Deployments() map[string]*types.Deployment
}

// Statistics is the metrics server's read-only query surface.
type Statistics interface {
	Statistic(podID string) (*metricsserver.PodStatistics, bool)
}

// HorizontalAutoscaler drives the periodic replica-count decision.
type HorizontalAutoscaler struct {
	addr kernel.Addr
	cfg  config.Config
	algo Algorithm
	log  zerolog.Logger

	deployments Deployments
	stats       Statistics

	lastDownscale map[string]float64
}

// New constructs a HorizontalAutoscaler bound to addr.
func New(addr kernel.Addr, cfg config.Config, algo Algorithm, deployments Deployments, stats Statistics) *HorizontalAutoscaler {
	return &HorizontalAutoscaler{
		addr:          addr,
		cfg:           cfg,
		algo:          algo,
		log:           log.WithComponent("horizontal-autoscaler"),
		deployments:   deployments,
		stats:         stats,
		lastDownscale: make(map[string]float64),
	}
}

// StartCycleTimer kicks off the periodic cycle. Call once at wiring time.
func (h *HorizontalAutoscaler) StartCycleTimer(k *kernel.Kernel) {
	k.Emit(h.addr, h.addr, simevents.HorizontalAutoscalerCycle{}, h.cfg.HPAInterval)
}

// HandleEvent implements kernel.Handler.
func (h *HorizontalAutoscaler) HandleEvent(k *kernel.Kernel, ev kernel.Event) {
	switch ev.Data.(type) {
	case simevents.HorizontalAutoscalerCycle:
		timer := metrics.NewTimer()
		h.runCycle(k)
		timer.ObserveDuration(metrics.HorizontalAutoscalerCycleDuration)
		k.Emit(h.addr, h.addr, simevents.HorizontalAutoscalerCycle{}, h.cfg.HPAInterval)
	}
}

func (h *HorizontalAutoscaler) runCycle(k *kernel.Kernel) {
	now := k.CurrentTime()
	for _, d := range h.deployments.Deployments() {
		if since, ok := h.lastDownscale[d.ID]; ok && now-since < h.cfg.HPADownscaleStabilization {
			continue
		}
		stats, complete := h.collectStats(d)
		if !complete {
			continue
		}

		newCnt := h.algo.GetNewReplicaCount(d, stats, now)
		if newCnt == d.CntReplicas {
			continue
		}
		if newCnt < d.CntReplicas {
			h.lastDownscale[d.ID] = now
		}
		metrics.HorizontalScalingEventsTotal.Inc()
		k.Emit(h.addr, simevents.AddrAPIServer, simevents.DeploymentHorizontalAutoscaling{
			DeploymentID:   d.ID,
			NewCntReplicas: newCnt,
		}, h.cfg.MessageDelay)
	}
}

// collectStats returns every replica's statistics, each with at least
// InitializationPeriod worth of history, or false if any replica is
// missing or still warming up.
func (h *HorizontalAutoscaler) collectStats(d *types.Deployment) ([]*metricsserver.PodStatistics, bool) {
	out := make([]*metricsserver.PodStatistics, 0, len(d.ReplicaIDs))
	for _, id := range d.ReplicaIDs {
		st, ok := h.stats.Statistic(id)
		if !ok {
			return nil, false
		}
		if st.CPU.HistoryTime() < h.cfg.HPAInitializationPeriod {
			return nil, false
		}
		out = append(out, st)
	}
	return out, true
}
