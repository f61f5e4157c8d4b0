package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestViewMonitor_RecordView(t *testing.T) {
	m := NewViewMonitor()

	m.RecordView(50*time.Millisecond, true)
	m.RecordView(70*time.Millisecond, true)
	m.RecordView(90*time.Millisecond, true)
	m.RecordView(200*time.Millisecond, false)
	m.RecordView(300*time.Millisecond, false)
	m.RecordCacheError()

	stats := m.GetStats()
	assert.Equal(t, int64(5), stats.TotalViews)
	assert.Equal(t, int64(3), stats.CacheHits)
	assert.Equal(t, int64(2), stats.CacheMisses)
	assert.Equal(t, int64(1), stats.CacheErrors)
	assert.Equal(t, int64(1), stats.SlowViews)
	assert.InDelta(t, 60.0, stats.CacheHitRate, 0.001)
	assert.InDelta(t, 70.0, stats.AvgCachedMs, 0.001)
	assert.InDelta(t, 250.0, stats.AvgComputedMs, 0.001)
	assert.InDelta(t, 300.0, stats.P95ComputedMs, 0.001)
}

func TestViewMonitor_Check(t *testing.T) {
	m := NewViewMonitor()
	for i := 0; i < 101; i++ {
		m.RecordView(10*time.Millisecond, true)
	}
	assert.Empty(t, m.Check())

	m.Reset()
	for i := 0; i < 101; i++ {
		m.RecordView(300*time.Millisecond, i%4 == 0)
	}
	issues := m.Check()
	assert.Len(t, issues, 2)
}

func TestViewMonitor_SampleWindow(t *testing.T) {
	m := NewViewMonitor()
	m.maxSamples = 3
	for _, ms := range []int{1000, 1000, 10, 10, 10} {
		m.RecordView(time.Duration(ms)*time.Millisecond, false)
	}
	assert.InDelta(t, 10.0, m.GetStats().AvgComputedMs, 0.001)
}
