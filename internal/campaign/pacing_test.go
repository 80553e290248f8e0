package campaign

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelayForCyclesPattern(t *testing.T) {
	patterns := [][]int{{1}, {1, 2}, {1, 2, 3, 2}, {0, 5, 0}}
	for _, p := range patterns {
		for i := 0; i < 3*len(p); i++ {
			assert.Equal(t, p[i%len(p)], DelayFor(i, p), "pattern %v index %d", p, i)
			assert.Equal(t, DelayFor(i, p), DelayFor(i+len(p), p), "pattern %v must repeat with period %d", p, len(p))
		}
	}
}

func TestDelayForDegenerateInput(t *testing.T) {
	assert.Equal(t, 0, DelayFor(3, nil))
	assert.Equal(t, 0, DelayFor(-1, []int{4}))
}

func TestDelay(t *testing.T) {
	assert.Equal(t, 2*time.Second, Delay(1, []int{1, 2}))
	assert.Equal(t, time.Second, Delay(2, []int{1, 2}))
}
