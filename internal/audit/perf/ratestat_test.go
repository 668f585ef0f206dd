package perf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateStatCountsRecentArrivals(t *testing.T) {
	r := NewRateStat(time.Second)
	for i := 0; i < 5; i++ {
		r.Record()
	}
	assert.Greater(t, r.Rate(), 0.0)
}

func TestRateStatZeroWithNoArrivals(t *testing.T) {
	r := NewRateStat(time.Second)
	assert.Equal(t, 0.0, r.Rate())
}
