package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventsDeliveredInTimeOrder(t *testing.T) {
	k := New()
	var order []string
	k.Register("a", HandlerFunc(func(k *Kernel, ev Event) {
		order = append(order, ev.Data.(string))
	}))
	k.Emit("", "a", "third", 3)
	k.Emit("", "a", "first", 1)
	k.Emit("", "a", "second", 2)
	k.StepUntilNoEvents()
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestTiesBrokenByEmissionOrder(t *testing.T) {
	k := New()
	var order []string
	k.Register("a", HandlerFunc(func(k *Kernel, ev Event) {
		order = append(order, ev.Data.(string))
	}))
	k.Emit("", "a", "one", 5)
	k.Emit("", "a", "two", 5)
	k.Emit("", "a", "three", 5)
	k.StepUntilNoEvents()
	assert.Equal(t, []string{"one", "two", "three"}, order)
}

func TestHandlerCanEmitDuringDispatch(t *testing.T) {
	k := New()
	count := 0
	k.Register("a", HandlerFunc(func(k *Kernel, ev Event) {
		count++
		if count < 5 {
			k.Emit("a", "a", nil, 1)
		}
	}))
	k.Emit("", "a", nil, 0)
	k.StepUntilNoEvents()
	assert.Equal(t, 5, count)
}

func TestStepUntilTimeStopsAtBoundary(t *testing.T) {
	k := New()
	delivered := 0
	k.Register("a", HandlerFunc(func(k *Kernel, ev Event) { delivered++ }))
	k.Emit("", "a", nil, 5)
	k.Emit("", "a", nil, 15)
	k.StepUntilTime(10)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 10.0, k.CurrentTime())
}

func TestStepsDeliversAtMostN(t *testing.T) {
	k := New()
	delivered := 0
	k.Register("a", HandlerFunc(func(k *Kernel, ev Event) { delivered++ }))
	for i := 0; i < 10; i++ {
		k.Emit("", "a", nil, float64(i))
	}
	n := k.Steps(3)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, delivered)
	assert.Equal(t, 7, k.EventCount())
}

func TestEmitToUnregisteredAddrIsNoOp(t *testing.T) {
	k := New()
	k.Emit("", "nowhere", nil, 1)
	assert.NotPanics(t, func() { k.StepUntilNoEvents() })
}

func TestRegisterReplacesExistingHandler(t *testing.T) {
	k := New()
	calls := 0
	k.Register("a", HandlerFunc(func(k *Kernel, ev Event) { calls++ }))
	k.Register("a", HandlerFunc(func(k *Kernel, ev Event) { calls += 10 }))
	k.Emit("", "a", nil, 0)
	k.StepUntilNoEvents()
	assert.Equal(t, 10, calls)
}
