// Package config loads simulation configuration from YAML, layering
// user-supplied values over the documented defaults. This mirrors
// original_source/src/simulation_config.rs's RawSimulationConfig: every
// field is optional in the file, and Load fills in defaults for
// anything left unset.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NodeSpec describes one group of identical nodes to create at startup.
type NodeSpec struct {
	CPU    float64 `yaml:"cpu"`
	Memory float64 `yaml:"memory"`
	Count  int     `yaml:"count"`
}

// DefaultNode describes the template the cluster autoscaler allocates
// from the cloud pool.
type DefaultNode struct {
	CPU    float64 `yaml:"cpu"`
	Memory float64 `yaml:"memory"`
	Count  int     `yaml:"count"`
}

// Config holds every tunable named in the external interfaces section,
// with the stated defaults applied by Default().
type Config struct {
	MessageDelay             float64 `yaml:"message_delay"`
	ControlPlaneMessageDelay float64 `yaml:"control_plane_message_delay"`

	PodStartDuration float64 `yaml:"pod_start_duration"`
	PodStopDuration  float64 `yaml:"pod_stop_duration"`
	NodeStopDuration float64 `yaml:"node_stop_duration"`

	PodInitialBackoffDuration float64 `yaml:"pod_initial_backoff_duration"`
	PodMaxBackoffDuration     float64 `yaml:"pod_max_backoff_duration"`

	UnschedulableFlushTimeout     float64 `yaml:"unschedulable_flush_timeout"`
	PodMinUnschedulableTimeout    float64 `yaml:"pod_min_unschedulable_timeout"`

	ClusterAutoscalerScanInterval float64     `yaml:"cluster_autoscaler_scan_interval"`
	DefaultNode                   DefaultNode `yaml:"default_node"`
	DefaultNodeAllocationTime     float64     `yaml:"default_node_allocation_time"`
	CloudNodesCount               int         `yaml:"cloud_nodes_count"`
	ScaleUpDelay                  float64     `yaml:"scale_up_delay"`
	ScaleDownUnneededTime         float64     `yaml:"scale_down_unneeded_time"`
	MaxEmptyBulkDelete            int         `yaml:"max_empty_bulk_delete"`

	MetricsServerInterval float64 `yaml:"metrics_server_interval"`
	VPAInterval           float64 `yaml:"vpa_interval"`
	HPAInterval           float64 `yaml:"hpa_interval"`

	MemoryPressureThreshold float64 `yaml:"memory_pressure_threshold"`
	UpdatePodsResourcesPeriod float64 `yaml:"update_pods_resources_period"`

	HPAInitializationPeriod     float64 `yaml:"hpa_initialization_period"`
	HPADownscaleStabilization   float64 `yaml:"hpa_downscale_stabilization"`

	Nodes []NodeSpec `yaml:"nodes"`
	Trace string     `yaml:"trace"`
}

// Default returns the configuration documented in the external
// interfaces section, with no nodes and no trace file.
func Default() Config {
	return Config{
		MessageDelay:                  0.2,
		ControlPlaneMessageDelay:       0.0,
		PodStartDuration:               5,
		PodStopDuration:                5,
		NodeStopDuration:               30,
		PodInitialBackoffDuration:      1,
		PodMaxBackoffDuration:          10,
		UnschedulableFlushTimeout:      30,
		PodMinUnschedulableTimeout:     30,
		ClusterAutoscalerScanInterval:  10,
		DefaultNode:                    DefaultNode{CPU: 8, Memory: 64, Count: 1},
		DefaultNodeAllocationTime:      120,
		CloudNodesCount:                100,
		ScaleUpDelay:                   0,
		ScaleDownUnneededTime:          600,
		MaxEmptyBulkDelete:             10,
		MetricsServerInterval:          30,
		VPAInterval:                    30,
		HPAInterval:                    30,
		MemoryPressureThreshold:        0.95,
		UpdatePodsResourcesPeriod:      10,
		HPAInitializationPeriod:        300,
		HPADownscaleStabilization:      300,
	}
}

// Load reads a YAML file at path and returns a Config with any omitted
// field defaulted. A missing or malformed file is a setup-time error,
// never a simulation-time one.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %q: %w", path, err)
	}

	raw := rawConfig{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parsing config %q: %w", path, err)
	}
	raw.applyTo(&cfg)
	return cfg, nil
}

// rawConfig mirrors Config but with every field a pointer, so Unmarshal
// can tell "absent" apart from "explicitly zero".
type rawConfig struct {
	MessageDelay             *float64 `yaml:"message_delay"`
	ControlPlaneMessageDelay *float64 `yaml:"control_plane_message_delay"`

	PodStartDuration *float64 `yaml:"pod_start_duration"`
	PodStopDuration  *float64 `yaml:"pod_stop_duration"`
	NodeStopDuration *float64 `yaml:"node_stop_duration"`

	PodInitialBackoffDuration *float64 `yaml:"pod_initial_backoff_duration"`
	PodMaxBackoffDuration     *float64 `yaml:"pod_max_backoff_duration"`

	UnschedulableFlushTimeout  *float64 `yaml:"unschedulable_flush_timeout"`
	PodMinUnschedulableTimeout *float64 `yaml:"pod_min_unschedulable_timeout"`

	ClusterAutoscalerScanInterval *float64     `yaml:"cluster_autoscaler_scan_interval"`
	DefaultNode                   *DefaultNode `yaml:"default_node"`
	DefaultNodeAllocationTime     *float64     `yaml:"default_node_allocation_time"`
	CloudNodesCount               *int         `yaml:"cloud_nodes_count"`
	ScaleUpDelay                  *float64     `yaml:"scale_up_delay"`
	ScaleDownUnneededTime         *float64     `yaml:"scale_down_unneeded_time"`
	MaxEmptyBulkDelete            *int         `yaml:"max_empty_bulk_delete"`

	MetricsServerInterval *float64 `yaml:"metrics_server_interval"`
	VPAInterval           *float64 `yaml:"vpa_interval"`
	HPAInterval           *float64 `yaml:"hpa_interval"`

	MemoryPressureThreshold   *float64 `yaml:"memory_pressure_threshold"`
	UpdatePodsResourcesPeriod *float64 `yaml:"update_pods_resources_period"`

	HPAInitializationPeriod   *float64 `yaml:"hpa_initialization_period"`
	HPADownscaleStabilization *float64 `yaml:"hpa_downscale_stabilization"`

	Nodes []NodeSpec `yaml:"nodes"`
	Trace *string    `yaml:"trace"`
}

func (r rawConfig) applyTo(c *Config) {
	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}

	set(&c.MessageDelay, r.MessageDelay)
	set(&c.ControlPlaneMessageDelay, r.ControlPlaneMessageDelay)
	set(&c.PodStartDuration, r.PodStartDuration)
	set(&c.PodStopDuration, r.PodStopDuration)
	set(&c.NodeStopDuration, r.NodeStopDuration)
	set(&c.PodInitialBackoffDuration, r.PodInitialBackoffDuration)
	set(&c.PodMaxBackoffDuration, r.PodMaxBackoffDuration)
	set(&c.UnschedulableFlushTimeout, r.UnschedulableFlushTimeout)
	set(&c.PodMinUnschedulableTimeout, r.PodMinUnschedulableTimeout)
	set(&c.ClusterAutoscalerScanInterval, r.ClusterAutoscalerScanInterval)
	if r.DefaultNode != nil {
		c.DefaultNode = *r.DefaultNode
	}
	set(&c.DefaultNodeAllocationTime, r.DefaultNodeAllocationTime)
	setInt(&c.CloudNodesCount, r.CloudNodesCount)
	set(&c.ScaleUpDelay, r.ScaleUpDelay)
	set(&c.ScaleDownUnneededTime, r.ScaleDownUnneededTime)
	setInt(&c.MaxEmptyBulkDelete, r.MaxEmptyBulkDelete)
	set(&c.MetricsServerInterval, r.MetricsServerInterval)
	set(&c.VPAInterval, r.VPAInterval)
	set(&c.HPAInterval, r.HPAInterval)
	set(&c.MemoryPressureThreshold, r.MemoryPressureThreshold)
	set(&c.UpdatePodsResourcesPeriod, r.UpdatePodsResourcesPeriod)
	set(&c.HPAInitializationPeriod, r.HPAInitializationPeriod)
	set(&c.HPADownscaleStabilization, r.HPADownscaleStabilization)
	if r.Nodes != nil {
		c.Nodes = r.Nodes
	}
	if r.Trace != nil {
		c.Trace = *r.Trace
	}
}
