// Package trace reads the JSON event-file format documented in spec.md
// §6, grounded on original_source/src/dataset_reader.rs's DatasetReader.
package trace

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cuemby/orbitsim/pkg/loadmodel"
)

// Kind distinguishes the three event types a trace file can carry.
// Any other "type" value is ignored by Load, per spec.md §6.
type Kind string

const (
	AddNode          Kind = "ADD_NODE"
	SubmitPod        Kind = "SUBMIT_POD"
	SubmitDeployment Kind = "SUBMIT_DEPLOYMENT"
)

// Event is one decoded trace entry. Only the fields relevant to Kind are
// populated; a caller switches on Kind before reading the rest.
type Event struct {
	Kind Kind

	// ADD_NODE
	CPU    float64
	Memory float64

	// SUBMIT_POD / SUBMIT_DEPLOYMENT
	Timestamp       float64
	RequestedCPU    float64
	RequestedMemory float64
	LimitCPU        float64
	LimitMemory     float64
	PriorityWeight  uint64
	CPULoadModel    loadmodel.Model
	MemoryLoadModel loadmodel.Model

	// SUBMIT_DEPLOYMENT only
	CntReplicas int
}

type rawEvent struct {
	Type            string          `json:"type"`
	CPU             *float64        `json:"cpu"`
	Memory          *float64        `json:"memory"`
	Timestamp       float64         `json:"timestamp"`
	RequestedCPU    float64         `json:"requested_cpu"`
	RequestedMemory float64         `json:"requested_memory"`
	LimitCPU        float64         `json:"limit_cpu"`
	LimitMemory     float64         `json:"limit_memory"`
	PriorityWeight  uint64          `json:"priority_weight"`
	CPULoadModel    json.RawMessage `json:"cpu_load_model"`
	MemoryLoadModel json.RawMessage `json:"memory_load_model"`
	CntReplicas     int             `json:"cnt_replicas"`
}

type rawLoadModel struct {
	Type      string `json:"type"`
	Value     *float64
	Snapshots []struct {
		Timestamp float64 `json:"timestamp"`
		Value     float64 `json:"value"`
	} `json:"snapshots"`
}

// Load reads path and returns the ADD_NODE/SUBMIT_POD/SUBMIT_DEPLOYMENT
// events it carries, in file order. Objects with an unrecognized "type"
// are skipped, per spec.md §6.
func Load(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading trace %q: %w", path, err)
	}

	var raws []rawEvent
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("parsing trace %q: %w", path, err)
	}

	events := make([]Event, 0, len(raws))
	for _, r := range raws {
		switch Kind(r.Type) {
		case AddNode:
			var cpu, mem float64
			if r.CPU != nil {
				cpu = *r.CPU
			}
			if r.Memory != nil {
				mem = *r.Memory
			}
			events = append(events, Event{Kind: AddNode, CPU: cpu, Memory: mem})
		case SubmitPod, SubmitDeployment:
			cpuModel, err := parseLoadModel(r.CPULoadModel, r.RequestedCPU)
			if err != nil {
				return nil, fmt.Errorf("trace %q: cpu_load_model: %w", path, err)
			}
			memModel, err := parseLoadModel(r.MemoryLoadModel, r.RequestedMemory)
			if err != nil {
				return nil, fmt.Errorf("trace %q: memory_load_model: %w", path, err)
			}
			events = append(events, Event{
				Kind:            Kind(r.Type),
				Timestamp:       r.Timestamp,
				RequestedCPU:    r.RequestedCPU,
				RequestedMemory: r.RequestedMemory,
				LimitCPU:        r.LimitCPU,
				LimitMemory:     r.LimitMemory,
				PriorityWeight:  r.PriorityWeight,
				CPULoadModel:    cpuModel,
				MemoryLoadModel: memModel,
				CntReplicas:     r.CntReplicas,
			})
		default:
			// unknown types are ignored
		}
	}
	return events, nil
}

// parseLoadModel decodes a {type: CONST|TRACE, ...} object into a
// loadmodel.Model. Any other type, or an empty object, falls back to a
// Constant at defaultValue, mirroring the original dataset reader.
func parseLoadModel(raw json.RawMessage, defaultValue float64) (loadmodel.Model, error) {
	if len(raw) == 0 {
		return &loadmodel.Constant{Resource_: defaultValue}, nil
	}
	var rlm rawLoadModel
	if err := json.Unmarshal(raw, &rlm); err != nil {
		return nil, err
	}
	switch rlm.Type {
	case "CONST":
		v := defaultValue
		if rlm.Value != nil {
			v = *rlm.Value
		}
		return &loadmodel.Constant{Resource_: v}, nil
	case "TRACE":
		history := make([]loadmodel.Snapshot, len(rlm.Snapshots))
		for i, s := range rlm.Snapshots {
			history[i] = loadmodel.Snapshot{Timestamp: s.Timestamp, Value: s.Value}
		}
		return &loadmodel.Trace{History: history}, nil
	default:
		return &loadmodel.Constant{Resource_: defaultValue}, nil
	}
}
