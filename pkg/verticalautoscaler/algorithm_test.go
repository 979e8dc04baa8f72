package verticalautoscaler

import (
	"testing"

	"github.com/cuemby/orbitsim/pkg/histogram"
	"github.com/cuemby/orbitsim/pkg/loadmodel"
	"github.com/cuemby/orbitsim/pkg/metricsserver"
	"github.com/cuemby/orbitsim/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePod(reqCPU, limCPU, reqMem, limMem float64) *types.Pod {
	return types.NewPod(reqCPU, reqMem, limCPU, limMem, 1, &loadmodel.Constant{Resource_: reqCPU}, &loadmodel.Constant{Resource_: reqMem})
}

func statWithDays(cpuSamples, memSamples []float64, maxCPU, maxMem float64, days float64) *metricsserver.PodStatistics {
	cpu := histogram.New(maxCPU)
	mem := histogram.New(maxMem)
	span := days * secondsPerDay
	for i, v := range cpuSamples {
		t := span * float64(i) / float64(len(cpuSamples)-1)
		cpu.AddSample(v, 1, t)
	}
	for i, v := range memSamples {
		t := span * float64(i) / float64(len(memSamples)-1)
		mem.AddSample(v, 1, t)
	}
	return &metricsserver.PodStatistics{CPU: cpu, Memory: mem}
}

func TestGetRecommendationNilWhenWithinBand(t *testing.T) {
	algo := AutoAlgorithm{ControlledValues: RequestsOnly}
	pod := samplePod(4.5, 8, 4.5, 8)
	samples := make([]float64, 50)
	for i := range samples {
		samples[i] = 4
	}
	stat := statWithDays(samples, samples, 10, 10, 2)
	assert.Nil(t, algo.GetRecommendation(pod, stat))
}

func TestGetRecommendationProposesNewRequestWhenOverUpperBound(t *testing.T) {
	algo := AutoAlgorithm{ControlledValues: RequestsOnly}
	pod := samplePod(9, 10, 4, 8)
	samples := make([]float64, 50)
	for i := range samples {
		samples[i] = 1
	}
	stat := statWithDays(samples, samples, 10, 10, 2)
	rec := algo.GetRecommendation(pod, stat)
	require.NotNil(t, rec)
	assert.Less(t, rec.NewRequestedCPU, pod.RequestedCPU)
}

func TestGetRecommendationPreservesLimitRatioInRequestsAndLimitsMode(t *testing.T) {
	algo := AutoAlgorithm{ControlledValues: RequestsAndLimits}
	pod := samplePod(9, 18, 4, 8)
	samples := make([]float64, 50)
	for i := range samples {
		samples[i] = 1
	}
	stat := statWithDays(samples, samples, 10, 10, 2)
	rec := algo.GetRecommendation(pod, stat)
	require.NotNil(t, rec)
	assert.InDelta(t, rec.NewRequestedCPU*2, rec.NewLimitCPU, 1e-9)
}

func TestGetRecommendationNilWithoutHistory(t *testing.T) {
	algo := AutoAlgorithm{}
	pod := samplePod(4, 8, 4, 8)
	stat := &metricsserver.PodStatistics{CPU: histogram.New(10), Memory: histogram.New(10)}
	assert.Nil(t, algo.GetRecommendation(pod, stat))
}
