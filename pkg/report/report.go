// Package report serializes a run's metrics stream to the JSON array
// format documented in spec.md §6, grounded on
// original_source/src/simulation.rs's finish_and_save_log.
package report

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cuemby/orbitsim/pkg/apiserver"
)

// Snapshot is one timestamped entry in the metrics stream. Field names
// match spec.md §6's "at minimum" list; SchedulingCycleCount and
// NodeAllocationPoolRemaining are supplemented fields that round out the
// picture from numbers the simulation already tracks.
type Snapshot struct {
	Timestamp float64 `json:"timestamp"`

	AvgAllocatedCPU    float64 `json:"avg_allocated_cpu"`
	AvgAllocatedMemory float64 `json:"avg_allocated_memory"`
	AvgUsedCPU         float64 `json:"avg_used_cpu"`
	AvgUsedMemory      float64 `json:"avg_used_memory"`

	CPUAllocationLoadRate float64 `json:"cpu_allocation_load_rate"`
	MemAllocationLoadRate float64 `json:"mem_allocation_load_rate"`
	CPUUsageLoadRate      float64 `json:"cpu_usage_load_rate"`
	MemUsageLoadRate      float64 `json:"mem_usage_load_rate"`

	DeploymentsCPUUtilization    float64 `json:"deployments_cpu_utilization"`
	DeploymentsMemoryUtilization float64 `json:"deployments_memory_utilization"`

	PodMigrationCount  uint64 `json:"pod_migration_count"`
	MemoryOveruseCount uint64 `json:"memory_overuse_count"`
	NodesCount         int    `json:"nodes_count"`
	SummaryPodsCount   int    `json:"summary_pods_count"`

	SchedulingCycleCount        uint64 `json:"scheduling_cycle_count"`
	NodeAllocationPoolRemaining int    `json:"node_allocation_pool_remaining"`
}

// FromAggregates converts an apiserver.Aggregates plus the two
// supplemented counters into a Snapshot ready to append to a Writer.
func FromAggregates(agg apiserver.Aggregates, schedulingCycleCount uint64, nodeAllocationPoolRemaining int) Snapshot {
	return Snapshot{
		Timestamp:                    agg.Time,
		AvgAllocatedCPU:              agg.AvgAllocatedCPU,
		AvgAllocatedMemory:           agg.AvgAllocatedMemory,
		AvgUsedCPU:                   agg.AvgUsedCPU,
		AvgUsedMemory:                agg.AvgUsedMemory,
		CPUAllocationLoadRate:        agg.CPUAllocationLoadRate,
		MemAllocationLoadRate:        agg.MemAllocationLoadRate,
		CPUUsageLoadRate:             agg.CPUUsageLoadRate,
		MemUsageLoadRate:             agg.MemUsageLoadRate,
		DeploymentsCPUUtilization:    agg.DeploymentsCPUUtilization,
		DeploymentsMemoryUtilization: agg.DeploymentsMemoryUtilization,
		PodMigrationCount:            agg.PodMigrationCount,
		MemoryOveruseCount:           agg.MemoryOveruseCount,
		NodesCount:                   agg.NodesCount,
		SummaryPodsCount:             agg.SummaryPodsCount,
		SchedulingCycleCount:         schedulingCycleCount,
		NodeAllocationPoolRemaining:  nodeAllocationPoolRemaining,
	}
}

// Writer accumulates Snapshots taken over a run and serializes them as a
// single JSON array, the format spec.md §6 calls the metrics output.
type Writer struct {
	snapshots []Snapshot
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Append records one Snapshot into the stream.
func (w *Writer) Append(s Snapshot) {
	w.snapshots = append(w.snapshots, s)
}

// Snapshots returns the recorded stream in append order.
func (w *Writer) Snapshots() []Snapshot {
	return w.snapshots
}

// Save writes the accumulated stream to path as a JSON array. A failure
// here is the one I/O error spec.md §7(a) calls out as user-visible.
func (w *Writer) Save(path string) error {
	data, err := json.MarshalIndent(w.snapshots, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling metrics stream: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing metrics stream %q: %w", path, err)
	}
	return nil
}
