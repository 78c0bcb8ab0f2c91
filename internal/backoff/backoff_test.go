package backoff

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponential(t *testing.T) {
	tests := []struct {
		name    string
		base    time.Duration
		attempt int
		want    time.Duration
	}{
		{"zero base", 0, 3, 0},
		{"first attempt", 100 * time.Millisecond, 0, 100 * time.Millisecond},
		{"third attempt", 100 * time.Millisecond, 2, 400 * time.Millisecond},
		{"negative attempt", time.Second, -1, time.Second},
		{"saturates", time.Hour, 200, time.Duration(math.MaxInt64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Exponential(tt.base, tt.attempt))
		})
	}
}

func TestCappedStaysBelowLimit(t *testing.T) {
	for attempt := 0; attempt < 100; attempt++ {
		d := Capped(10*time.Millisecond, time.Second, attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, time.Second)
	}
}

func TestFullJitterNonPositive(t *testing.T) {
	assert.Zero(t, FullJitter(0))
	assert.Zero(t, FullJitter(-time.Second))
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}
