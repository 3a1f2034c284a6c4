package sweeper

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/goliatone/go-review/core"
)

const defaultRetention = 30 * 24 * time.Hour

// Sweeper scans stream records out-of-band and routes every purge through
// the owning actor as a synthetic event. It never writes stream state
// directly; its scan pass is read-only.
type Sweeper struct {
	Store       core.StreamStore
	Applier     core.EventApplier
	AuditPruner core.AuditRetentionPruner
	AuditPolicy core.AuditRetentionPolicy
	Metrics     core.MetricsRecorder
	Logger      core.Logger
	Retention   time.Duration
	Now         func() time.Time
}

// Sweep runs one full pass: purge-eligible RFCs, audit retention, and the
// storage gauge. Per-stream failures are logged and skipped so one bad
// stream never starves the rest of the pass.
func (s *Sweeper) Sweep(ctx context.Context) (core.SweepStats, error) {
	if s == nil || s.Store == nil || s.Applier == nil {
		return core.SweepStats{}, fmt.Errorf("sweeper: store and applier are required")
	}
	now := s.now()
	retention := s.Retention
	if retention <= 0 {
		retention = defaultRetention
	}

	streams, err := s.Store.List(ctx)
	if err != nil {
		return core.SweepStats{}, fmt.Errorf("sweeper: list streams: %w", err)
	}

	var stats core.SweepStats
	for _, stream := range streams {
		if stream == nil {
			continue
		}
		stats.StreamsScanned++
		for _, record := range stream.RFCs {
			if !s.purgeEligible(stream, record, retention, now) {
				continue
			}
			footprint := recordFootprint(record, stream.NudgeWindows[record.ID])
			result, applyErr := s.Applier.Apply(ctx, core.Event{
				StreamID:   stream.StreamID,
				DeliveryID: fmt.Sprintf("sweep-%s", uuid.NewString()),
				Type:       core.EventTypePurge,
				RFCID:      record.ID,
				ReceivedAt: now,
			})
			if applyErr != nil {
				s.logError("sweeper: purge apply failed",
					"stream_id", stream.StreamID, "rfc_id", record.ID, "error", applyErr)
				continue
			}
			if result.Accepted() {
				stats.Purged++
				stats.BytesFreed += footprint
			} else {
				stats.PurgeRejected++
			}
		}
	}

	if s.AuditPruner != nil {
		pruned, pruneErr := s.AuditPruner.Prune(ctx, s.AuditPolicy)
		if pruneErr != nil {
			s.logError("sweeper: audit prune failed", "error", pruneErr)
		} else {
			stats.AuditPruned = pruned
		}
	}

	s.recordGauges(ctx)
	return stats, nil
}

func (s *Sweeper) purgeEligible(stream *core.StreamState, record *core.RFCRecord, retention time.Duration, now time.Time) bool {
	if record == nil {
		return false
	}
	// The active RFC is never purged regardless of age.
	if record.ID == stream.ActiveRFCID {
		return false
	}
	return record.RetentionEligible(retention, now)
}

func (s *Sweeper) recordGauges(ctx context.Context) {
	if s.Metrics == nil {
		return
	}
	sizer, ok := s.Store.(core.StorageSizer)
	if !ok {
		return
	}
	bytes, err := sizer.StorageBytes(ctx)
	if err != nil {
		s.logError("sweeper: storage size probe failed", "error", err)
		return
	}
	s.Metrics.SetGauge(ctx, core.MetricStorageBytes, float64(bytes), nil)
}

func (s *Sweeper) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Sweeper) logError(msg string, args ...any) {
	if s == nil || s.Logger == nil {
		return
	}
	s.Logger.Error(msg, args...)
}

func recordFootprint(record *core.RFCRecord, window []time.Time) int64 {
	payload := struct {
		Record *core.RFCRecord `json:"record"`
		Window []time.Time     `json:"window,omitempty"`
	}{Record: record, Window: window}
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0
	}
	return int64(len(raw))
}

// Runner drives periodic sweeps on a fixed interval until stopped.
type Runner struct {
	Sweeper  *Sweeper
	Interval time.Duration
	Logger   core.Logger

	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

func NewRunner(sweeper *Sweeper, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Runner{Sweeper: sweeper, Interval: interval}
}

func (r *Runner) Start(ctx context.Context) error {
	if r == nil || r.Sweeper == nil {
		return fmt.Errorf("sweeper: runner requires a sweeper")
	}
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("sweeper: runner already started")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	go r.loop(ctx)
	return nil
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			if _, err := r.Sweeper.Sweep(ctx); err != nil && r.Logger != nil {
				r.Logger.Error("sweeper: scheduled sweep failed", "error", err)
			}
		}
	}
}

func (r *Runner) Stop() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	done := r.doneCh
	r.mu.Unlock()
	<-done
}
