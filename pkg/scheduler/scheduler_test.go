package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDurationMonotoneAndClamped(t *testing.T) {
	var prev float64
	for attempts := uint64(1); attempts <= 10; attempts++ {
		d := backoffDuration(attempts, 1, 10)
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, 10.0)
		prev = d
	}
}

func TestBackoffDurationFirstAttempt(t *testing.T) {
	assert.Equal(t, 1.0, backoffDuration(1, 1, 10))
	assert.Equal(t, 2.0, backoffDuration(2, 1, 10))
	assert.Equal(t, 4.0, backoffDuration(3, 1, 10))
	assert.Equal(t, 8.0, backoffDuration(4, 1, 10))
	assert.Equal(t, 10.0, backoffDuration(5, 1, 10))
}
