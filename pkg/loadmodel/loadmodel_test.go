package loadmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstantDividesByReplicas(t *testing.T) {
	m := &Constant{Resource_: 10}
	assert.Equal(t, 10.0, m.Resource(0, 0, 1))
	assert.Equal(t, 5.0, m.Resource(0, 0, 2))
	assert.Equal(t, 2.5, m.Resource(0, 0, 4))
}

func TestIncreaseRampsThenHolds(t *testing.T) {
	m := &Increase{IncreaseTime: 10, StartResource: 0, EndResource: 100}
	assert.Equal(t, 0.0, m.Resource(0, 0, 1))
	assert.Equal(t, 50.0, m.Resource(5, 5, 1))
	assert.Equal(t, 100.0, m.Resource(20, 20, 1))
}

func TestDecreaseRampsThenHolds(t *testing.T) {
	m := &Decrease{DecreaseTime: 10, StartResource: 100, EndResource: 20}
	assert.Equal(t, 100.0, m.Resource(0, 0, 1))
	assert.Equal(t, 60.0, m.Resource(5, 5, 1))
	assert.Equal(t, 20.0, m.Resource(30, 30, 1))
}

func TestTraceAdvancesMonotonically(t *testing.T) {
	tr := &Trace{History: []Snapshot{
		{Timestamp: 0, Value: 10},
		{Timestamp: 5, Value: 20},
		{Timestamp: 15, Value: 5},
	}}
	assert.Equal(t, 10.0, tr.Resource(0, 0, 1))
	assert.Equal(t, 20.0, tr.Resource(7, 7, 1))
	assert.Equal(t, 5.0, tr.Resource(16, 16, 1))
}

func TestTraceResetsOnRestart(t *testing.T) {
	tr := &Trace{History: []Snapshot{
		{Timestamp: 0, Value: 1},
		{Timestamp: 10, Value: 2},
	}}
	assert.Equal(t, 2.0, tr.Resource(11, 11, 1))
	// pod migrated and restarted: time_since_start resets, timestamp regresses
	assert.Equal(t, 1.0, tr.Resource(20, 0, 1))
}

func TestCloneIsIndependent(t *testing.T) {
	tr := &Trace{History: []Snapshot{{Timestamp: 0, Value: 1}, {Timestamp: 5, Value: 2}}}
	tr.Resource(6, 6, 1)
	clone := tr.Clone().(*Trace)
	assert.Equal(t, 0, clone.nowPtr)
}
