// Package simulation wires every component onto one kernel and exposes
// the caller-facing Driver API (spec §6), grounded on
// original_source/src/simulation.rs's K8sSimulation.
package simulation

import (
	"github.com/cuemby/orbitsim/pkg/apiserver"
	"github.com/cuemby/orbitsim/pkg/clusterautoscaler"
	"github.com/cuemby/orbitsim/pkg/config"
	"github.com/cuemby/orbitsim/pkg/horizontalautoscaler"
	"github.com/cuemby/orbitsim/pkg/kernel"
	"github.com/cuemby/orbitsim/pkg/loadmodel"
	"github.com/cuemby/orbitsim/pkg/metricsserver"
	"github.com/cuemby/orbitsim/pkg/node"
	"github.com/cuemby/orbitsim/pkg/scheduler"
	"github.com/cuemby/orbitsim/pkg/simevents"
	"github.com/cuemby/orbitsim/pkg/trace"
	"github.com/cuemby/orbitsim/pkg/types"
	"github.com/cuemby/orbitsim/pkg/verticalautoscaler"
)

// Simulation owns one kernel and every component registered on it, and
// implements the Driver API spec §6 names as caller-facing methods.
type Simulation struct {
	k   *kernel.Kernel
	cfg config.Config

	api   *apiserver.APIServer
	sched *scheduler.Scheduler
	ms    *metricsserver.MetricsServer
	ca    *clusterautoscaler.ClusterAutoscaler
	vpa   *verticalautoscaler.VerticalAutoscaler
	hpa   *horizontalautoscaler.HorizontalAutoscaler
	nodes map[string]*node.Component
}

// Options selects the pluggable strategies a run is configured with; the
// zero value picks the spec's default strategies (MostRequestedPriority,
// SimpleAlgorithm, AutoAlgorithm, a CPU-only ResourcesAlgorithm).
type Options struct {
	SchedulerAlgorithm            scheduler.Algorithm
	ClusterAutoscalerAlgorithm    clusterautoscaler.Algorithm
	VerticalAutoscalerAlgorithm   verticalautoscaler.Algorithm
	HorizontalAutoscalerAlgorithm horizontalautoscaler.Algorithm
}

func (o Options) withDefaults(cfg config.Config) Options {
	if o.SchedulerAlgorithm == nil {
		o.SchedulerAlgorithm = scheduler.MostRequestedPriority{}
	}
	if o.ClusterAutoscalerAlgorithm == nil {
		o.ClusterAutoscalerAlgorithm = clusterautoscaler.NewSimpleAlgorithm(
			cfg.ScaleDownUnneededTime, cfg.MaxEmptyBulkDelete, cfg.ScaleUpDelay)
	}
	if o.VerticalAutoscalerAlgorithm == nil {
		o.VerticalAutoscalerAlgorithm = verticalautoscaler.AutoAlgorithm{}
	}
	if o.HorizontalAutoscalerAlgorithm == nil {
		o.HorizontalAutoscalerAlgorithm = horizontalautoscaler.ResourcesAlgorithm{
			Controlled:  horizontalautoscaler.CPUOnly,
			MinReplicas: 1,
			MaxReplicas: 100,
		}
	}
	return o
}

// New wires every component onto a fresh kernel and starts their
// periodic timers, producing a Simulation ready to accept Driver calls.
func New(cfg config.Config, opts Options) *Simulation {
	opts = opts.withDefaults(cfg)
	k := kernel.New()

	s := &Simulation{k: k, cfg: cfg, nodes: make(map[string]*node.Component)}

	factory := func(k *kernel.Kernel, cpu, memory float64) (*types.Node, kernel.Addr) {
		n := types.NewNode(cpu, memory)
		return n, s.registerNode(n)
	}
	s.api = apiserver.New(simevents.AddrAPIServer, cfg, cfg.CloudNodesCount, cfg.DefaultNode.CPU, cfg.DefaultNode.Memory, factory)
	k.Register(simevents.AddrAPIServer, s.api)

	s.sched = scheduler.New(simevents.AddrScheduler, cfg, opts.SchedulerAlgorithm, s.api)
	k.Register(simevents.AddrScheduler, s.sched)

	s.ms = metricsserver.New(simevents.AddrMetricsServer, cfg, s.api)
	k.Register(simevents.AddrMetricsServer, s.ms)

	s.ca = clusterautoscaler.New(simevents.AddrClusterAutoscaler, cfg, opts.ClusterAutoscalerAlgorithm, s.sched, s.api)
	k.Register(simevents.AddrClusterAutoscaler, s.ca)

	s.vpa = verticalautoscaler.New(simevents.AddrVerticalAutoscaler, cfg, opts.VerticalAutoscalerAlgorithm, s.api, s.ms)
	k.Register(simevents.AddrVerticalAutoscaler, s.vpa)

	s.hpa = horizontalautoscaler.New(simevents.AddrHorizontalAutoscaler, cfg, opts.HorizontalAutoscalerAlgorithm, s.api, s.ms)
	k.Register(simevents.AddrHorizontalAutoscaler, s.hpa)

	s.api.StartMetricsTimer(k)
	s.sched.StartFlushTimer(k)
	s.ms.StartSnapshotTimer(k)
	s.ca.StartScanTimer(k)
	s.vpa.StartCycleTimer(k)
	s.hpa.StartCycleTimer(k)

	for _, spec := range cfg.Nodes {
		for i := 0; i < spec.Count; i++ {
			s.AddNode(spec.CPU, spec.Memory)
		}
	}

	return s
}

// registerNode wraps n in a node.Component, registers it with the
// kernel, starts its reconcile timer, and records it for lookups.
func (s *Simulation) registerNode(n *types.Node) kernel.Addr {
	c := node.New(n, s.cfg)
	s.k.Register(c.Addr(), c)
	c.StartReconcileTimer(s.k)
	s.nodes[n.ID] = c
	return c.Addr()
}

// AddNode synchronously registers a Working node and returns its id.
func (s *Simulation) AddNode(cpuTotal, memoryTotal float64) string {
	n := types.NewNode(cpuTotal, memoryTotal)
	s.registerNode(n)
	s.api.AddWorkingNode(n)
	return n.ID
}

// RecoverNode enqueues a NodeStatusChanged(Working) after
// control_plane_message_delay + delay.
func (s *Simulation) RecoverNode(nodeID string, delay float64) {
	s.k.Emit("driver", simevents.AddrAPIServer, simevents.NodeStatusChanged{
		NodeID: nodeID, NewStatus: types.NodeWorking,
	}, s.cfg.ControlPlaneMessageDelay+delay)
}

// CrashNode enqueues a NodeStatusChanged(Failed) after
// control_plane_message_delay + delay.
func (s *Simulation) CrashNode(nodeID string, delay float64) {
	s.k.Emit("driver", simevents.AddrAPIServer, simevents.NodeStatusChanged{
		NodeID: nodeID, NewStatus: types.NodeFailed,
	}, s.cfg.ControlPlaneMessageDelay+delay)
}

// SubmitPod mints a standalone pod and enqueues its PodAssigningRequest
// after delay, returning the pod id.
func (s *Simulation) SubmitPod(requestedCPU, requestedMemory, limitCPU, limitMemory float64, priority uint64, cpuLoad, memLoad loadmodel.Model, delay float64) string {
	p := types.NewPod(requestedCPU, requestedMemory, limitCPU, limitMemory, priority, cpuLoad, memLoad)
	s.k.Emit("driver", simevents.AddrAPIServer, simevents.PodAssigningRequest{Pod: p}, delay)
	return p.ID
}

// SubmitDeployment mints a deployment and enqueues its
// DeploymentCreateRequest after delay, returning the deployment id.
func (s *Simulation) SubmitDeployment(requestedCPU, requestedMemory, limitCPU, limitMemory float64, priority uint64, cpuLoad, memLoad loadmodel.Model, cntReplicas int, delay float64) string {
	d := &types.Deployment{
		ID:              types.NewID(),
		CPULoadModel:    cpuLoad,
		MemoryLoadModel: memLoad,
		RequestedCPU:    requestedCPU,
		RequestedMemory: requestedMemory,
		LimitCPU:        limitCPU,
		LimitMemory:     limitMemory,
		PriorityWeight:  priority,
		CntReplicas:     cntReplicas,
		CreatedAt:       s.k.CurrentTime(),
	}
	s.k.Emit("driver", simevents.AddrAPIServer, simevents.DeploymentCreateRequest{Deployment: d}, delay)
	return d.ID
}

// LoadTrace replays every event in events against the Driver API,
// ADD_NODE events applied immediately and SUBMIT_POD/SUBMIT_DEPLOYMENT
// scheduled at their recorded timestamp.
func (s *Simulation) LoadTrace(events []trace.Event) {
	for _, e := range events {
		switch e.Kind {
		case trace.AddNode:
			s.AddNode(e.CPU, e.Memory)
		case trace.SubmitPod:
			s.SubmitPod(e.RequestedCPU, e.RequestedMemory, e.LimitCPU, e.LimitMemory,
				e.PriorityWeight, e.CPULoadModel, e.MemoryLoadModel, e.Timestamp)
		case trace.SubmitDeployment:
			s.SubmitDeployment(e.RequestedCPU, e.RequestedMemory, e.LimitCPU, e.LimitMemory,
				e.PriorityWeight, e.CPULoadModel, e.MemoryLoadModel, e.CntReplicas, e.Timestamp)
		}
	}
}

// RemovePod enqueues an immediate PodRemoveRequest for podID.
func (s *Simulation) RemovePod(podID string) {
	s.k.Emit("driver", simevents.AddrAPIServer, simevents.PodRemoveRequest{PodID: podID}, 0)
}

// StepForDuration advances simulated time by d seconds.
func (s *Simulation) StepForDuration(d float64) { s.k.StepForDuration(d) }

// StepUntilTime advances simulated time up to and including t.
func (s *Simulation) StepUntilTime(t float64) { s.k.StepUntilTime(t) }

// Steps delivers up to n pending events.
func (s *Simulation) Steps(n int) int { return s.k.Steps(n) }

// StepUntilNoEvents drains the event queue entirely. Safe only once no
// periodic timer is still pending re-emission forever, i.e. never in a
// real run; intended for bounded test scenarios only.
func (s *Simulation) StepUntilNoEvents() { s.k.StepUntilNoEvents() }

// EventCount returns the number of events still pending delivery.
func (s *Simulation) EventCount() int { return s.k.EventCount() }

// CurrentTime returns the simulation's current simulated time.
func (s *Simulation) CurrentTime() float64 { return s.k.CurrentTime() }

// WorkingNodes returns the live working-node map.
func (s *Simulation) WorkingNodes() map[string]*types.Node { return s.api.WorkingNodes() }

// FailedNodes returns the live failed-node map.
func (s *Simulation) FailedNodes() map[string]*types.Node { return s.api.FailedNodes() }

// Node looks up a node by id in either state.
func (s *Simulation) Node(id string) (*types.Node, bool) { return s.api.Node(id) }

// Pod looks up a pod by id regardless of residency.
func (s *Simulation) Pod(id string) (*types.Pod, bool) { return s.api.Pod(id) }

// Deployment looks up a deployment by id.
func (s *Simulation) Deployment(id string) (*types.Deployment, bool) { return s.api.Deployment(id) }

// Aggregates returns the current cluster-wide aggregate metrics (spec §6).
func (s *Simulation) Aggregates() apiserver.Aggregates { return s.api.ComputeAggregates(s.CurrentTime()) }

// AverageCPULoad, AverageMemoryLoad, CPULoadRate, and MemoryLoadRate are
// the four named accessors from original_source/src/simulation.rs,
// supplemented per spec.md §6's "aggregate load rates" Driver accessor.
func (s *Simulation) AverageCPULoad() float64    { return s.api.AverageCPULoad(s.CurrentTime()) }
func (s *Simulation) AverageMemoryLoad() float64 { return s.api.AverageMemoryLoad(s.CurrentTime()) }
func (s *Simulation) CPULoadRate() float64       { return s.api.CPULoadRate(s.CurrentTime()) }
func (s *Simulation) MemoryLoadRate() float64    { return s.api.MemoryLoadRate(s.CurrentTime()) }

// SchedulingCycleCount returns the running count of scheduling cycles.
func (s *Simulation) SchedulingCycleCount() uint64 { return s.sched.SchedulingCycleCount() }

// NodeAllocationPoolRemaining returns how many more nodes the cluster
// autoscaler can still allocate from the finite cloud pool.
func (s *Simulation) NodeAllocationPoolRemaining() int { return s.api.CloudPoolRemaining() }

// PodMigrationCount returns the running count of pod migrations.
func (s *Simulation) PodMigrationCount() uint64 { return s.api.PodMigrationCount() }

// UnschedulableCount returns the scheduler's current unschedulable-list size.
func (s *Simulation) UnschedulableCount() int { return s.sched.UnschedulableCount() }
