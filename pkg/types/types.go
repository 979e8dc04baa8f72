// Package types holds the data carriers shared across every simulation
// component: Pod, Node, Deployment, and the small value types they are
// built from.
package types

import (
	"github.com/cuemby/orbitsim/pkg/loadmodel"
	"github.com/google/uuid"
)

// NewID mints a fresh identifier using the same convention the rest of
// this module relies on for pods, nodes, and deployments.
func NewID() string {
	return uuid.New().String()
}

// ResourceAmount bundles a CPU and memory quantity together, since most
// of the domain logic operates on both at once.
type ResourceAmount struct {
	CPU    float64
	Memory float64
}

// PodPhase mirrors the pod lifecycle state machine from the state
// machine design: Submitted -> Queued(Active) <-> Unschedulable <->
// Backoff -> Assigned -> Placed -> (Running | Evicted->Queued | Removed).
type PodPhase string

const (
	PodSubmitted     PodPhase = "submitted"
	PodQueued        PodPhase = "queued"
	PodUnschedulable PodPhase = "unschedulable"
	PodBackoff       PodPhase = "backoff"
	PodAssigned      PodPhase = "assigned"
	PodPlaced        PodPhase = "placed"
	PodEvicted       PodPhase = "evicted"
	PodRemoved       PodPhase = "removed"
)

// Pod is a unit of scheduling: resource requests/limits, a priority
// weight, scheduling bookkeeping, and the two load models driving its
// simulated resource consumption.
type Pod struct {
	ID string

	RequestedCPU    float64
	RequestedMemory float64
	LimitCPU        float64
	LimitMemory     float64

	// CPU and Memory are the currently-assigned amounts while placed;
	// zero when unplaced. Always <= the corresponding Limit.
	CPU    float64
	Memory float64

	PriorityWeight uint64

	SchedulingAttempts  uint64
	SchedulingTimestamp float64

	StartTime float64

	DeploymentID string // empty if not a replica of a deployment
	// ReplicaCount is the live replica count of the owning deployment,
	// used as the divisor for both load models; always 1 for standalone
	// pods. The API server updates this on every replica across a
	// deployment whenever it resizes.
	ReplicaCount int

	CPULoadModel    loadmodel.Model
	MemoryLoadModel loadmodel.Model

	Phase PodPhase
}

// NewPod constructs a Pod in the Submitted phase with a fresh id.
func NewPod(requestedCPU, requestedMemory, limitCPU, limitMemory float64, priority uint64, cpuLoad, memLoad loadmodel.Model) *Pod {
	return &Pod{
		ID:              NewID(),
		RequestedCPU:    requestedCPU,
		RequestedMemory: requestedMemory,
		LimitCPU:        limitCPU,
		LimitMemory:     limitMemory,
		PriorityWeight:  priority,
		CPULoadModel:    cpuLoad,
		MemoryLoadModel: memLoad,
		Phase:           PodSubmitted,
		ReplicaCount:    1,
	}
}

// Reset clears scheduling bookkeeping (attempts and timestamp) after a
// successful placement. It leaves the assigned usage alone; ClearUsage
// handles that on removal.
func (p *Pod) Reset() {
	p.SchedulingAttempts = 0
	p.SchedulingTimestamp = 0
}

// ClearUsage zeroes out the pod's currently-assigned resource amounts,
// called on removal from a node.
func (p *Pod) ClearUsage() {
	p.CPU = 0
	p.Memory = 0
}

// NodeState is Working or Failed, per the node state machine.
type NodeState string

const (
	NodeWorking NodeState = "working"
	NodeFailed  NodeState = "failed"
)

// Node is a resource container hosting pods.
type Node struct {
	ID string

	CPUTotal    float64
	MemoryTotal float64

	CPUAllocated    float64
	MemoryAllocated float64
	CPUUsed         float64
	MemoryUsed      float64

	State NodeState

	Pods map[string]*Pod

	MemoryOveruseCount uint64
}

// NewNode constructs a Working node with the given capacities.
func NewNode(cpuTotal, memoryTotal float64) *Node {
	return &Node{
		ID:          NewID(),
		CPUTotal:    cpuTotal,
		MemoryTotal: memoryTotal,
		State:       NodeWorking,
		Pods:        make(map[string]*Pod),
	}
}

// FreeCPU returns remaining allocatable CPU.
func (n *Node) FreeCPU() float64 { return n.CPUTotal - n.CPUAllocated }

// FreeMemory returns remaining allocatable memory.
func (n *Node) FreeMemory() float64 { return n.MemoryTotal - n.MemoryAllocated }

// IsIdle reports whether the node has zero allocated resources in both
// dimensions, the condition the cluster autoscaler's scale-down logic
// tracks.
func (n *Node) IsIdle() bool {
	return n.CPUAllocated == 0 && n.MemoryAllocated == 0
}

// Deployment is a replica-count template producing homogeneous pods.
type Deployment struct {
	ID string

	CPULoadModel    loadmodel.Model
	MemoryLoadModel loadmodel.Model

	RequestedCPU    float64
	RequestedMemory float64
	LimitCPU        float64
	LimitMemory     float64
	PriorityWeight  uint64

	ReplicaIDs []string

	CntReplicas int

	LastDownscaleTime float64
	CreatedAt         float64
}

// NewReplica mints a fresh pod from the deployment's resource and load
// model fields, with an empty start time and its own load model cursors.
func (d *Deployment) NewReplica() *Pod {
	p := NewPod(d.RequestedCPU, d.RequestedMemory, d.LimitCPU, d.LimitMemory, d.PriorityWeight,
		d.CPULoadModel.Clone(), d.MemoryLoadModel.Clone())
	p.DeploymentID = d.ID
	return p
}
