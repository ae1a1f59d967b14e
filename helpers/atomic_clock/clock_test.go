package atomic_clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApi(t *testing.T) {
	t.Parallel()

	var zero Clock
	assert.True(t, zero.IsZero())
	assert.True(t, zero.Time().IsZero())
	zero.SetNowIfZero()
	assert.False(t, zero.IsZero())

	c := Now()
	tim := time.Now()
	const delta = 100 * time.Millisecond

	assert.InDelta(t, tim.UnixNano(), c.UnixNano(), float64(delta))
	assert.InDelta(t, tim.UnixNano(), c.Time().UnixNano(), float64(delta))

	c.Set(tim.UnixNano())
	assert.Equal(t, tim.UnixNano(), c.UnixNano())
	assert.Equal(t, time.Duration(0), c.Sub(New(tim.UnixNano())))

	c.SetNow()
	assert.True(t, Since(c) < delta)
}
