package review_test

import (
	"context"
	"testing"

	review "github.com/goliatone/go-review"
	"github.com/goliatone/go-review/core"
)

type stubCommandQueryService struct {
	applied []core.Event
	swept   int
}

func (s *stubCommandQueryService) Apply(_ context.Context, event core.Event) (core.ApplyResult, error) {
	s.applied = append(s.applied, event)
	return core.ApplyResult{Outcome: core.ApplyOutcomeAccepted, RFCID: event.RFCID}, nil
}

func (s *stubCommandQueryService) GetState(context.Context, string) (core.StreamSnapshot, error) {
	return core.StreamSnapshot{}, nil
}

func (s *stubCommandQueryService) GetAudit(context.Context, core.AuditFilter) (core.AuditPage, error) {
	return core.AuditPage{}, nil
}

func (s *stubCommandQueryService) GetMetrics() core.MetricsSnapshot {
	return core.MetricsSnapshot{}
}

type stubSweepService struct {
	calls int
}

func (s *stubSweepService) Sweep(context.Context) (core.SweepStats, error) {
	s.calls++
	return core.SweepStats{StreamsScanned: 2}, nil
}

func TestNewFacadeRequiresService(t *testing.T) {
	if _, err := review.NewFacade(nil); err == nil {
		t.Fatal("expected error for nil service")
	}
}

func TestNewFacadeBuildsCommandsAndQueries(t *testing.T) {
	facade, err := review.NewFacade(&stubCommandQueryService{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	commands := facade.Commands()
	if commands.ApplyEvent == nil {
		t.Fatal("expected apply event command")
	}
	if commands.Sweep != nil {
		t.Fatal("sweep command should be absent without a sweep service")
	}

	queries := facade.Queries()
	if queries.GetState == nil || queries.GetAudit == nil || queries.GetMetrics == nil {
		t.Fatal("expected all query handlers")
	}
}

func TestNewFacadeWiresSweepServiceOption(t *testing.T) {
	sweeper := &stubSweepService{}
	facade, err := review.NewFacade(&stubCommandQueryService{}, review.WithSweepService(sweeper))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if facade.Commands().Sweep == nil {
		t.Fatal("expected sweep command when the option supplies a sweep service")
	}
}

type sweepingService struct {
	stubCommandQueryService
	stubSweepService
}

func TestNewFacadeResolvesSweepFromService(t *testing.T) {
	facade, err := review.NewFacade(&sweepingService{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if facade.Commands().Sweep == nil {
		t.Fatal("expected sweep command resolved from the service itself")
	}
}
