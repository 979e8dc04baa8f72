// Package simevents holds every event payload type exchanged between
// simulation components through the kernel. Centralizing these avoids
// import cycles between apiserver/scheduler/node/the autoscalers, which
// all need to both emit and receive each other's messages; it mirrors
// the Rust source's module-namespaced event payload structs
// (assigning::*, node::*, scheduler::*) collapsed into one Go package.
package simevents

import "github.com/cuemby/orbitsim/pkg/types"

// Well-known component mailbox addresses. Node addresses are the node's
// own ID, minted dynamically.
const (
	AddrAPIServer            = "api-server"
	AddrScheduler            = "scheduler"
	AddrClusterAutoscaler    = "cluster-autoscaler"
	AddrMetricsServer        = "metrics-server"
	AddrVerticalAutoscaler   = "vertical-autoscaler"
	AddrHorizontalAutoscaler = "horizontal-autoscaler"
)

// PodAssigningRequest asks the scheduler (via the API server) to place a
// pod for the first time or after a removal/migration/resize.
type PodAssigningRequest struct {
	Pod *types.Pod
}

// PodAssigningSucceeded reports the scheduler's chosen node for a pod,
// sent to the API server.
type PodAssigningSucceeded struct {
	Pod    *types.Pod
	NodeID string
}

// PodAssigningFailed reports that no candidate node was found during a
// given scheduling cycle.
type PodAssigningFailed struct {
	Pod   *types.Pod
	Cycle uint64
}

// PodPlacementRequest asks a node to admit a pod.
type PodPlacementRequest struct {
	Pod *types.Pod
}

// PodPlacementSucceeded reports that a node admitted a pod.
type PodPlacementSucceeded struct {
	PodID  string
	NodeID string
}

// PodPlacementFailed reports that a node rejected a pod (capacity
// changed between Assigning and Placement).
type PodPlacementFailed struct {
	Pod    *types.Pod
	NodeID string
}

// PodMigrationRequest reports that a node evicted a resident pod and it
// needs to be re-enqueued for scheduling elsewhere.
type PodMigrationRequest struct {
	Pod          *types.Pod
	SourceNodeID string
}

// PodRemoveRequest asks the API server to remove a pod entirely.
type PodRemoveRequest struct {
	PodID string
}

// DeploymentCreateRequest asks the API server to mint replica pods for a
// new deployment.
type DeploymentCreateRequest struct {
	Deployment *types.Deployment
}

// DeploymentHorizontalAutoscaling asks the API server to resize a
// deployment's replica count.
type DeploymentHorizontalAutoscaling struct {
	DeploymentID   string
	NewCntReplicas int
}

// NodeStatusChanged reports a node transitioning between Working and
// Failed.
type NodeStatusChanged struct {
	NodeID    string
	NewStatus types.NodeState
}

// RemoveNode asks the API server to drop a node (cluster autoscaler
// scale-down).
type RemoveNode struct {
	NodeID string
}

// AllocateNewDefaultNodes asks the API server to pop N nodes from the
// finite cloud pool using the configured default node template.
type AllocateNewDefaultNodes struct {
	Count int
}

// MetricsSnapshot is the API server's self-re-emitted periodic aggregate
// logging tick.
type MetricsSnapshot struct{}

// SchedulingCycle is the scheduler's self-re-emitted cycle tick.
type SchedulingCycle struct{}

// PodBackoffRetry is a delayed self-emit returning a pod to the active
// queue after its backoff duration elapses.
type PodBackoffRetry struct {
	Pod *types.Pod
}

// UnschedulableFlush is the scheduler's periodic flush timer.
type UnschedulableFlush struct{}

// MoveRequest is emitted by the API server whenever the working-node set
// grows, is restored, or otherwise changes, prompting the scheduler to
// retry unschedulable pods.
type MoveRequest struct{}

// ClusterAutoscalerScan is the cluster autoscaler's self-re-emitted
// periodic tick.
type ClusterAutoscalerScan struct{}

// MetricsServerSnapshot is the metrics server's self-re-emitted periodic
// sampling tick.
type MetricsServerSnapshot struct{}

// VerticalAutoscalerCycle is the vertical autoscaler's self-re-emitted
// periodic tick.
type VerticalAutoscalerCycle struct{}

// HorizontalAutoscalerCycle is the horizontal autoscaler's self-re-emitted
// periodic tick.
type HorizontalAutoscalerCycle struct{}

// PodRequestAndLimitsChange asks a node to apply a vertical autoscaler
// recommendation to a resident pod.
type PodRequestAndLimitsChange struct {
	PodID              string
	NewRequestedCPU    float64
	NewLimitCPU        float64
	NewRequestedMemory float64
	NewLimitMemory     float64
}

// NodeReconcile is a node's self-re-emitted periodic reconciliation tick.
type NodeReconcile struct{}

// ClearPodStatistics asks the metrics server to drop a removed pod's
// histograms and last snapshot.
type ClearPodStatistics struct {
	PodID string
}
