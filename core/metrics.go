package core

import (
	"context"
	"strings"
	"sync"
)

const (
	MetricInvocationsTotal = "review.invocations.total"
	MetricCleanupTotal     = "review.cleanup.total"
	MetricSLABreachesTotal = "review.sla_breaches.total"
	MetricStorageBytes     = "review.storage.bytes"
)

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func (NopMetricsRecorder) SetGauge(context.Context, string, float64, map[string]string) {}

// MetricsCollector is an in-process MetricsRecorder that also serves the
// read-only get_metrics snapshot.
type MetricsCollector struct {
	mu       sync.RWMutex
	counters map[string]int64
	gauges   map[string]float64
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters: map[string]int64{},
		gauges:   map[string]float64{},
	}
}

func (c *MetricsCollector) IncCounter(_ context.Context, name string, value int64, _ map[string]string) {
	if c == nil {
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[name] += value
}

func (c *MetricsCollector) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func (c *MetricsCollector) SetGauge(_ context.Context, name string, value float64, _ map[string]string) {
	if c == nil {
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[name] = value
}

func (c *MetricsCollector) Snapshot() MetricsSnapshot {
	if c == nil {
		return MetricsSnapshot{Counters: map[string]int64{}}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	counters := make(map[string]int64, len(c.counters))
	for name, value := range c.counters {
		counters[name] = value
	}
	return MetricsSnapshot{
		InvocationsTotal:  counters[MetricInvocationsTotal],
		CleanupTotal:      counters[MetricCleanupTotal],
		SLABreachesTotal:  counters[MetricSLABreachesTotal],
		StorageBytesGauge: int64(c.gauges[MetricStorageBytes]),
		Counters:          counters,
	}
}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var (
	_ MetricsRecorder = NopMetricsRecorder{}
	_ MetricsRecorder = (*MetricsCollector)(nil)
	_ MetricsReader   = (*MetricsCollector)(nil)
)
