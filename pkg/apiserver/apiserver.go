// Package apiserver implements the cluster state of record: working and
// failed nodes, the pod-to-node map, and deployment bookkeeping, plus the
// routing behaviors described in spec §4.2.
package apiserver

import (
	"github.com/cuemby/orbitsim/pkg/config"
	"github.com/cuemby/orbitsim/pkg/kernel"
	"github.com/cuemby/orbitsim/pkg/log"
	"github.com/cuemby/orbitsim/pkg/node"
	"github.com/cuemby/orbitsim/pkg/simevents"
	"github.com/cuemby/orbitsim/pkg/types"
	"github.com/rs/zerolog"
)

// NodeFactory mints a new node Component (and registers it with the
// kernel) for a freshly allocated default node, returning the created
// *types.Node for the API server's maps.
type NodeFactory func(k *kernel.Kernel, cpu, memory float64) (*types.Node, kernel.Addr)

// APIServer owns the cluster-state maps and routes placement, removal,
// and migration traffic between the scheduler and the nodes.
type APIServer struct {
	addr kernel.Addr
	cfg  config.Config
	log  zerolog.Logger

	workingNodes map[string]*types.Node
	failedNodes  map[string]*types.Node
	podToNode    map[string]string
	pods         map[string]*types.Pod
	deployments  map[string]*types.Deployment

	cloudPoolRemaining int
	defaultNodeCPU     float64
	defaultNodeMemory  float64
	newNode            NodeFactory

	podMigrationCount uint64
}

// New constructs an empty APIServer bound to addr with the given cloud
// node pool and factory used to materialize new nodes on scale-up.
func New(addr kernel.Addr, cfg config.Config, cloudNodesCount int, defaultNodeCPU, defaultNodeMemory float64, factory NodeFactory) *APIServer {
	return &APIServer{
		addr:               addr,
		cfg:                cfg,
		log:                log.WithComponent("api-server"),
		workingNodes:       make(map[string]*types.Node),
		failedNodes:        make(map[string]*types.Node),
		podToNode:          make(map[string]string),
		pods:               make(map[string]*types.Pod),
		deployments:        make(map[string]*types.Deployment),
		cloudPoolRemaining: cloudNodesCount,
		defaultNodeCPU:     defaultNodeCPU,
		defaultNodeMemory:  defaultNodeMemory,
		newNode:            factory,
	}
}

// AddWorkingNode registers an already-constructed node directly (used by
// the driver's synchronous AddNode call).
func (a *APIServer) AddWorkingNode(n *types.Node) {
	a.workingNodes[n.ID] = n
}

// WorkingNodeList implements scheduler.WorkingNodes.
func (a *APIServer) WorkingNodeList() []*types.Node {
	out := make([]*types.Node, 0, len(a.workingNodes))
	for _, n := range a.workingNodes {
		out = append(out, n)
	}
	return out
}

// WorkingNodes returns the live map of working nodes by id.
func (a *APIServer) WorkingNodes() map[string]*types.Node { return a.workingNodes }

// FailedNodes returns the live map of failed nodes by id.
func (a *APIServer) FailedNodes() map[string]*types.Node { return a.failedNodes }

// Node looks up a node by id in either map.
func (a *APIServer) Node(id string) (*types.Node, bool) {
	if n, ok := a.workingNodes[id]; ok {
		return n, true
	}
	n, ok := a.failedNodes[id]
	return n, ok
}

// PodToNode returns the live pod id -> node id mapping for resident
// pods, used by the vertical autoscaler to locate each pod's node.
func (a *APIServer) PodToNode() map[string]string { return a.podToNode }

// Pod looks up a pod by id, regardless of whether it is currently
// resident on a node, queued, or backed off.
func (a *APIServer) Pod(id string) (*types.Pod, bool) {
	p, ok := a.pods[id]
	return p, ok
}

// Deployment looks up a deployment by id.
func (a *APIServer) Deployment(id string) (*types.Deployment, bool) {
	d, ok := a.deployments[id]
	return d, ok
}

// Deployments returns the live deployment map.
func (a *APIServer) Deployments() map[string]*types.Deployment { return a.deployments }

// PodMigrationCount returns the running count of migrations processed.
func (a *APIServer) PodMigrationCount() uint64 { return a.podMigrationCount }

// HandleEvent implements kernel.Handler.
func (a *APIServer) HandleEvent(k *kernel.Kernel, ev kernel.Event) {
	switch data := ev.Data.(type) {
	case simevents.PodAssigningRequest:
		a.pods[data.Pod.ID] = data.Pod
		k.Emit(a.addr, simevents.AddrScheduler, data, a.cfg.ControlPlaneMessageDelay)

	case simevents.PodAssigningSucceeded:
		if _, ok := a.workingNodes[data.NodeID]; !ok {
			k.Emit(a.addr, simevents.AddrScheduler, simevents.PodAssigningRequest{Pod: data.Pod}, a.cfg.ControlPlaneMessageDelay)
			return
		}
		k.Emit(a.addr, kernel.Addr(data.NodeID), simevents.PodPlacementRequest{Pod: data.Pod}, a.cfg.MessageDelay)

	case simevents.PodPlacementSucceeded:
		a.podToNode[data.PodID] = data.NodeID

	case simevents.PodPlacementFailed:
		k.Emit(a.addr, simevents.AddrScheduler, simevents.PodAssigningRequest{Pod: data.Pod}, a.cfg.ControlPlaneMessageDelay)

	case simevents.PodRemoveRequest:
		a.removePod(k, data.PodID)

	case simevents.NodeStatusChanged:
		a.onNodeStatusChanged(k, data)

	case simevents.RemoveNode:
		a.removeNode(k, data.NodeID)

	case simevents.DeploymentCreateRequest:
		a.createDeployment(k, data.Deployment)

	case simevents.DeploymentHorizontalAutoscaling:
		a.resizeDeployment(k, data.DeploymentID, data.NewCntReplicas)

	case simevents.PodMigrationRequest:
		a.podMigrationCount++
		if nodeID, ok := a.podToNode[data.Pod.ID]; ok && nodeID == data.SourceNodeID {
			delete(a.podToNode, data.Pod.ID)
		}
		data.Pod.Phase = types.PodQueued
		k.Emit(a.addr, simevents.AddrScheduler, simevents.PodAssigningRequest{Pod: data.Pod}, a.cfg.ControlPlaneMessageDelay)

	case simevents.AllocateNewDefaultNodes:
		a.allocateDefaultNodes(k, data.Count)

	case simevents.MetricsSnapshot:
		a.logAggregates(k)
		k.Emit(a.addr, a.addr, simevents.MetricsSnapshot{}, a.cfg.MetricsServerInterval)
	}
}

func (a *APIServer) removePod(k *kernel.Kernel, podID string) {
	if nodeID, ok := a.podToNode[podID]; ok {
		if n, ok := a.workingNodes[nodeID]; ok {
			node.RemovePod(n, podID)
		}
		delete(a.podToNode, podID)
	}
	delete(a.pods, podID)
	k.Emit(a.addr, simevents.AddrMetricsServer, simevents.ClearPodStatistics{PodID: podID}, 0)
}

func (a *APIServer) onNodeStatusChanged(k *kernel.Kernel, data simevents.NodeStatusChanged) {
	if data.NewStatus == types.NodeWorking {
		n, ok := a.failedNodes[data.NodeID]
		if !ok {
			return
		}
		node.Restore(n)
		delete(a.failedNodes, data.NodeID)
		a.workingNodes[data.NodeID] = n
		k.Emit(a.addr, simevents.AddrScheduler, simevents.MoveRequest{}, 0)
		return
	}

	n, ok := a.workingNodes[data.NodeID]
	if !ok {
		return
	}
	residents := node.Fail(n)
	delete(a.workingNodes, data.NodeID)
	a.failedNodes[data.NodeID] = n

	for _, pod := range residents {
		delete(a.podToNode, pod.ID)
		pod.Phase = types.PodQueued
		k.Emit(a.addr, simevents.AddrScheduler, simevents.PodAssigningRequest{Pod: pod}, a.cfg.ControlPlaneMessageDelay)
	}
	k.Emit(a.addr, simevents.AddrScheduler, simevents.MoveRequest{}, 0)
}

func (a *APIServer) removeNode(k *kernel.Kernel, nodeID string) {
	n, ok := a.workingNodes[nodeID]
	if !ok {
		return
	}
	residentIDs := make([]string, 0, len(n.Pods))
	for id, pod := range n.Pods {
		residentIDs = append(residentIDs, id)
		pod.ClearUsage()
		delete(a.podToNode, id)
		k.Emit(a.addr, simevents.AddrScheduler, simevents.PodAssigningRequest{Pod: pod}, a.cfg.ControlPlaneMessageDelay)
	}
	for _, id := range residentIDs {
		delete(n.Pods, id)
	}
	delete(a.workingNodes, nodeID)
}

func (a *APIServer) createDeployment(k *kernel.Kernel, d *types.Deployment) {
	a.deployments[d.ID] = d
	d.ReplicaIDs = make([]string, 0, d.CntReplicas)
	for i := 0; i < d.CntReplicas; i++ {
		p := d.NewReplica()
		p.ReplicaCount = d.CntReplicas
		d.ReplicaIDs = append(d.ReplicaIDs, p.ID)
		a.pods[p.ID] = p
		k.Emit(a.addr, simevents.AddrScheduler, simevents.PodAssigningRequest{Pod: p}, a.cfg.ControlPlaneMessageDelay)
	}
}

func (a *APIServer) resizeDeployment(k *kernel.Kernel, deploymentID string, newCnt int) {
	d, ok := a.deployments[deploymentID]
	if !ok {
		return
	}
	if newCnt < d.CntReplicas {
		for len(d.ReplicaIDs) > newCnt {
			last := len(d.ReplicaIDs) - 1
			podID := d.ReplicaIDs[last]
			d.ReplicaIDs = d.ReplicaIDs[:last]
			k.Emit(a.addr, a.addr, simevents.PodRemoveRequest{PodID: podID}, 0)
		}
	} else if newCnt > d.CntReplicas {
		for len(d.ReplicaIDs) < newCnt {
			p := d.NewReplica()
			d.ReplicaIDs = append(d.ReplicaIDs, p.ID)
			a.pods[p.ID] = p
			k.Emit(a.addr, simevents.AddrScheduler, simevents.PodAssigningRequest{Pod: p}, a.cfg.ControlPlaneMessageDelay)
		}
	}
	d.CntReplicas = newCnt
	a.refreshReplicaCounts(d)
}

func (a *APIServer) refreshReplicaCounts(d *types.Deployment) {
	for _, podID := range d.ReplicaIDs {
		if p, ok := a.pods[podID]; ok {
			p.ReplicaCount = d.CntReplicas
		}
	}
}

// CloudPoolRemaining reports how many nodes the cluster autoscaler can
// still allocate from the finite cloud pool, surfaced in the metrics
// stream (SPEC_FULL.md §6).
func (a *APIServer) CloudPoolRemaining() int {
	return a.cloudPoolRemaining
}

func (a *APIServer) allocateDefaultNodes(k *kernel.Kernel, requested int) {
	cnt := requested
	if cnt > a.cloudPoolRemaining {
		a.log.Warn().Int("requested", requested).Int("remaining", a.cloudPoolRemaining).Msg("cloud node pool exhausted, truncating allocation")
		cnt = a.cloudPoolRemaining
	}
	a.cloudPoolRemaining -= cnt
	grew := false
	for i := 0; i < cnt; i++ {
		n, _ := a.newNode(k, a.defaultNodeCPU, a.defaultNodeMemory)
		a.workingNodes[n.ID] = n
		grew = true
	}
	if grew {
		k.Emit(a.addr, simevents.AddrScheduler, simevents.MoveRequest{}, 0)
	}
}

// Aggregates computed for logging and for the report package.
type Aggregates struct {
	Time float64

	AvgAllocatedCPU    float64
	AvgAllocatedMemory float64
	AvgUsedCPU         float64
	AvgUsedMemory      float64

	CPUAllocationLoadRate float64
	MemAllocationLoadRate float64
	CPUUsageLoadRate      float64
	MemUsageLoadRate      float64

	DeploymentsCPUUtilization    float64
	DeploymentsMemoryUtilization float64

	PodMigrationCount  uint64
	MemoryOveruseCount uint64
	NodesCount         int
	SummaryPodsCount   int
}

// ComputeAggregates produces the metrics output described in spec §4.2
// and §6.
func (a *APIServer) ComputeAggregates(now float64) Aggregates {
	agg := Aggregates{Time: now, PodMigrationCount: a.podMigrationCount, NodesCount: len(a.workingNodes)}
	if len(a.workingNodes) == 0 {
		return agg
	}

	var sumAllocCPU, sumAllocMem, sumUsedCPU, sumUsedMem, sumTotalCPU, sumTotalMem float64
	var overuse uint64
	podsCount := 0
	for _, n := range a.workingNodes {
		sumAllocCPU += n.CPUAllocated
		sumAllocMem += n.MemoryAllocated
		sumUsedCPU += n.CPUUsed
		sumUsedMem += n.MemoryUsed
		sumTotalCPU += n.CPUTotal
		sumTotalMem += n.MemoryTotal
		overuse += n.MemoryOveruseCount
		podsCount += len(n.Pods)
	}
	count := float64(len(a.workingNodes))
	agg.AvgAllocatedCPU = sumAllocCPU / count
	agg.AvgAllocatedMemory = sumAllocMem / count
	agg.AvgUsedCPU = sumUsedCPU / count
	agg.AvgUsedMemory = sumUsedMem / count
	if sumTotalCPU > 0 {
		agg.CPUAllocationLoadRate = sumAllocCPU / sumTotalCPU
		agg.CPUUsageLoadRate = sumUsedCPU / sumTotalCPU
	}
	if sumTotalMem > 0 {
		agg.MemAllocationLoadRate = sumAllocMem / sumTotalMem
		agg.MemUsageLoadRate = sumUsedMem / sumTotalMem
	}
	agg.MemoryOveruseCount = overuse
	agg.SummaryPodsCount = podsCount

	if len(a.deployments) > 0 {
		var cpuUtilSum, memUtilSum float64
		dCount := 0
		for _, d := range a.deployments {
			var cpuUsed, memUsed float64
			replicas := 0
			for _, podID := range d.ReplicaIDs {
				if _, resident := a.podToNode[podID]; !resident {
					continue
				}
				if p, ok := a.pods[podID]; ok {
					cpuUsed += p.CPU
					memUsed += p.Memory
					replicas++
				}
			}
			if replicas == 0 {
				continue
			}
			avgCPU := cpuUsed / float64(replicas)
			avgMem := memUsed / float64(replicas)
			if d.RequestedCPU > 0 {
				cpuUtilSum += avgCPU / d.RequestedCPU
			}
			if d.RequestedMemory > 0 {
				memUtilSum += avgMem / d.RequestedMemory
			}
			dCount++
		}
		if dCount > 0 {
			agg.DeploymentsCPUUtilization = cpuUtilSum / float64(dCount)
			agg.DeploymentsMemoryUtilization = memUtilSum / float64(dCount)
		}
	}

	return agg
}

func (a *APIServer) logAggregates(k *kernel.Kernel) {
	agg := a.ComputeAggregates(k.CurrentTime())
	a.log.Info().
		Float64("sim_time", agg.Time).
		Int("nodes", agg.NodesCount).
		Float64("cpu_load_rate", agg.CPUAllocationLoadRate).
		Float64("mem_load_rate", agg.MemAllocationLoadRate).
		Uint64("pod_migrations", agg.PodMigrationCount).
		Uint64("memory_overuse", agg.MemoryOveruseCount).
		Msg("metrics snapshot")
}

// StartMetricsTimer kicks off the periodic MetricsSnapshot tick. Call
// once at wiring time.
func (a *APIServer) StartMetricsTimer(k *kernel.Kernel) {
	k.Emit(a.addr, a.addr, simevents.MetricsSnapshot{}, a.cfg.MetricsServerInterval)
}

// AverageCPULoad returns the average allocated CPU across working
// nodes (Driver accessor supplementing spec.md §6, grounded on
// original_source/src/simulation.rs).
func (a *APIServer) AverageCPULoad(now float64) float64 {
	return a.ComputeAggregates(now).AvgAllocatedCPU
}

// AverageMemoryLoad returns the average allocated memory across working
// nodes.
func (a *APIServer) AverageMemoryLoad(now float64) float64 {
	return a.ComputeAggregates(now).AvgAllocatedMemory
}

// CPULoadRate returns sum(allocated CPU)/sum(total CPU) across working
// nodes.
func (a *APIServer) CPULoadRate(now float64) float64 {
	return a.ComputeAggregates(now).CPUAllocationLoadRate
}

// MemoryLoadRate returns sum(allocated memory)/sum(total memory) across
// working nodes.
func (a *APIServer) MemoryLoadRate(now float64) float64 {
	return a.ComputeAggregates(now).MemAllocationLoadRate
}
