// Package metricsserver periodically samples every resident pod's
// current CPU and memory into per-pod histograms, the feed the vertical
// and horizontal autoscalers read from. Grounded on
// original_source/src/metrics_server.rs, generalized from its raw
// VecDeque history to the fixed-bucket Histogram described in spec §4.6.
package metricsserver

import (
	"github.com/cuemby/orbitsim/pkg/config"
	"github.com/cuemby/orbitsim/pkg/histogram"
	"github.com/cuemby/orbitsim/pkg/kernel"
	"github.com/cuemby/orbitsim/pkg/log"
	"github.com/cuemby/orbitsim/pkg/metrics"
	"github.com/cuemby/orbitsim/pkg/simevents"
	"github.com/cuemby/orbitsim/pkg/types"
	"github.com/rs/zerolog"
)

// NodeSource exposes the API server's working-node view without giving
// the metrics server a pointer back into its internals.
type NodeSource interface {
	WorkingNodes() map[string]*types.Node
}

// PodSnapshot is the most recent sampled reading for a pod.
type PodSnapshot struct {
	CPU    float64
	Memory float64
	Time   float64
}

// PodStatistics bundles a pod's live CPU/memory histograms with its last
// snapshot, per spec §4.6's "statistics output per pod".
type PodStatistics struct {
	CPU          *histogram.Histogram
	Memory       *histogram.Histogram
	LastSnapshot PodSnapshot
}

// MetricsServer owns per-pod histograms and the last snapshot; a pod
// removal clears its entries (spec §3 Ownership).
type MetricsServer struct {
	addr  kernel.Addr
	cfg   config.Config
	log   zerolog.Logger
	nodes NodeSource

	stats map[string]*PodStatistics
}

// New constructs a MetricsServer bound to addr, sampling from nodes.
func New(addr kernel.Addr, cfg config.Config, nodes NodeSource) *MetricsServer {
	return &MetricsServer{
		addr:  addr,
		cfg:   cfg,
		log:   log.WithComponent("metrics-server"),
		nodes: nodes,
		stats: make(map[string]*PodStatistics),
	}
}

// StartSnapshotTimer kicks off the periodic sampling tick. Call once at
// wiring time.
func (m *MetricsServer) StartSnapshotTimer(k *kernel.Kernel) {
	k.Emit(m.addr, m.addr, simevents.MetricsServerSnapshot{}, m.cfg.MetricsServerInterval)
}

// HandleEvent implements kernel.Handler.
func (m *MetricsServer) HandleEvent(k *kernel.Kernel, ev kernel.Event) {
	switch data := ev.Data.(type) {
	case simevents.MetricsServerSnapshot:
		timer := metrics.NewTimer()
		m.snapshot(k.CurrentTime())
		timer.ObserveDuration(metrics.MetricsServerSnapshotDuration)
		k.Emit(m.addr, m.addr, simevents.MetricsServerSnapshot{}, m.cfg.MetricsServerInterval)

	case simevents.ClearPodStatistics:
		delete(m.stats, data.PodID)
	}
}

func (m *MetricsServer) snapshot(now float64) {
	for _, n := range m.nodes.WorkingNodes() {
		for podID, pod := range n.Pods {
			st, ok := m.stats[podID]
			if !ok {
				st = &PodStatistics{
					CPU:    histogram.New(pod.LimitCPU),
					Memory: histogram.New(pod.LimitMemory),
				}
				m.stats[podID] = st
			}
			st.CPU.AddSample(pod.CPU, 1, now)
			st.Memory.AddSample(pod.Memory, 1, now)
			st.LastSnapshot = PodSnapshot{CPU: pod.CPU, Memory: pod.Memory, Time: now}
		}
	}
}

// Statistic returns the live histograms and last snapshot for podID, or
// false if the pod has never been sampled.
func (m *MetricsServer) Statistic(podID string) (*PodStatistics, bool) {
	st, ok := m.stats[podID]
	return st, ok
}
