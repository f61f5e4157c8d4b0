package service

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// slowViewThreshold marks a building view as slow
const slowViewThreshold = 200 * time.Millisecond

// ViewMonitor tracks building view latency, split by cache hits and
// views computed from the store
type ViewMonitor struct {
	mu            sync.RWMutex
	cachedTimes   []time.Duration
	computedTimes []time.Duration
	cacheHits     int64
	cacheMisses   int64
	cacheErrors   int64
	slowViews     int64
	maxSamples    int
}

// NewViewMonitor creates a monitor keeping the last 1000 samples per kind
func NewViewMonitor() *ViewMonitor {
	return &ViewMonitor{maxSamples: 1000}
}

// RecordView records one served view
func (m *ViewMonitor) RecordView(duration time.Duration, cached bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cached {
		m.cacheHits++
		m.cachedTimes = appendSample(m.cachedTimes, duration, m.maxSamples)
	} else {
		m.cacheMisses++
		m.computedTimes = appendSample(m.computedTimes, duration, m.maxSamples)
	}
	if duration > slowViewThreshold {
		m.slowViews++
	}
}

// RecordCacheError counts a cache read or write that failed
func (m *ViewMonitor) RecordCacheError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheErrors++
}

func appendSample(samples []time.Duration, d time.Duration, max int) []time.Duration {
	samples = append(samples, d)
	if len(samples) > max {
		samples = samples[len(samples)-max:]
	}
	return samples
}

// ViewStats is a snapshot of building view latency
type ViewStats struct {
	TotalViews     int64   `json:"totalViews"`
	CacheHits      int64   `json:"cacheHits"`
	CacheMisses    int64   `json:"cacheMisses"`
	CacheErrors    int64   `json:"cacheErrors"`
	SlowViews      int64   `json:"slowViews"`
	CacheHitRate   float64 `json:"cacheHitRate"` // percent
	AvgCachedMs    float64 `json:"avgCachedMs"`
	AvgComputedMs  float64 `json:"avgComputedMs"`
	P95ComputedMs  float64 `json:"p95ComputedMs"`
}

// GetStats returns current statistics
func (m *ViewMonitor) GetStats() *ViewStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &ViewStats{
		TotalViews:  m.cacheHits + m.cacheMisses,
		CacheHits:   m.cacheHits,
		CacheMisses: m.cacheMisses,
		CacheErrors: m.cacheErrors,
		SlowViews:   m.slowViews,
	}
	if stats.TotalViews > 0 {
		stats.CacheHitRate = float64(m.cacheHits) / float64(stats.TotalViews) * 100
	}
	stats.AvgCachedMs = averageMs(m.cachedTimes)
	stats.AvgComputedMs = averageMs(m.computedTimes)
	stats.P95ComputedMs = percentileMs(m.computedTimes, 0.95)
	return stats
}

// Check reports latency problems, or nil when views are healthy
func (m *ViewMonitor) Check() []string {
	stats := m.GetStats()
	var issues []string
	if stats.AvgCachedMs > float64(slowViewThreshold.Milliseconds()) {
		issues = append(issues, fmt.Sprintf("average cached view time %.2fms exceeds %v", stats.AvgCachedMs, slowViewThreshold))
	}
	if stats.TotalViews > 100 && stats.CacheHitRate < 50 {
		issues = append(issues, fmt.Sprintf("cache hit rate %.2f%% is below 50%%", stats.CacheHitRate))
	}
	return issues
}

// Reset clears all samples and counters
func (m *ViewMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cachedTimes = nil
	m.computedTimes = nil
	m.cacheHits, m.cacheMisses, m.cacheErrors, m.slowViews = 0, 0, 0, 0
}

func averageMs(samples []time.Duration) float64 {
	if len(samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range samples {
		total += d
	}
	return float64(total.Microseconds()) / 1000 / float64(len(samples))
}

func percentileMs(samples []time.Duration, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return float64(sorted[idx].Microseconds()) / 1000
}
