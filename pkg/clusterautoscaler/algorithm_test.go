package clusterautoscaler

import (
	"testing"

	"github.com/cuemby/orbitsim/pkg/loadmodel"
	"github.com/cuemby/orbitsim/pkg/types"
	"github.com/stretchr/testify/assert"
)

func pendingPod(cpu, mem float64) *types.Pod {
	return types.NewPod(cpu, mem, cpu, mem, 1, &loadmodel.Constant{Resource_: cpu}, &loadmodel.Constant{Resource_: mem})
}

func TestTryScaleUpReturnsZeroWhenNoPending(t *testing.T) {
	a := NewSimpleAlgorithm(600, 10, 0)
	assert.Equal(t, 0, a.TryScaleUp(nil, 8, 64, 0))
}

func TestTryScaleUpPacksOntoSingleNodeWhenItFits(t *testing.T) {
	a := NewSimpleAlgorithm(600, 10, 0)
	pending := []*types.Pod{pendingPod(2, 4), pendingPod(2, 4), pendingPod(2, 4)}
	assert.Equal(t, 1, a.TryScaleUp(pending, 8, 64, 0))
}

func TestTryScaleUpOpensAdditionalNodeWhenFull(t *testing.T) {
	a := NewSimpleAlgorithm(600, 10, 0)
	pending := []*types.Pod{pendingPod(6, 8), pendingPod(6, 8)}
	assert.Equal(t, 2, a.TryScaleUp(pending, 8, 64, 0))
}

func TestTryScaleUpRespectsScaleUpDelay(t *testing.T) {
	a := NewSimpleAlgorithm(600, 10, 100)
	pending := []*types.Pod{pendingPod(2, 4)}
	assert.Equal(t, 1, a.TryScaleUp(pending, 8, 64, 0))
	assert.Equal(t, 0, a.TryScaleUp(pending, 8, 64, 50))
	assert.Equal(t, 1, a.TryScaleUp(pending, 8, 64, 150))
}

func TestTryScaleDownTracksIdleThenRemoves(t *testing.T) {
	a := NewSimpleAlgorithm(100, 10, 0)
	n := types.NewNode(8, 64)
	working := map[string]*types.Node{n.ID: n}

	assert.Empty(t, a.TryScaleDown(working, 0))
	assert.Empty(t, a.TryScaleDown(working, 50))
	assert.Equal(t, []string{n.ID}, a.TryScaleDown(working, 100))
}

func TestTryScaleDownForgetsNodeThatBecomesLoaded(t *testing.T) {
	a := NewSimpleAlgorithm(100, 10, 0)
	n := types.NewNode(8, 64)
	working := map[string]*types.Node{n.ID: n}
	a.TryScaleDown(working, 0)

	n.CPUAllocated = 1
	assert.Empty(t, a.TryScaleDown(working, 100))

	n.CPUAllocated = 0
	assert.Empty(t, a.TryScaleDown(working, 100))
	assert.Equal(t, []string{n.ID}, a.TryScaleDown(working, 200))
}

func TestTryScaleDownRespectsMaxBulkDelete(t *testing.T) {
	a := NewSimpleAlgorithm(10, 1, 0)
	n1 := types.NewNode(8, 64)
	n2 := types.NewNode(8, 64)
	working := map[string]*types.Node{n1.ID: n1, n2.ID: n2}
	a.TryScaleDown(working, 0)
	removed := a.TryScaleDown(working, 20)
	assert.Len(t, removed, 1)
}
