package review

import (
	"fmt"

	reviewcommand "github.com/goliatone/go-review/command"
	reviewquery "github.com/goliatone/go-review/query"
)

// CommandQueryService is what the facade needs from the underlying service.
// *core.Service satisfies everything except sweeping, which lives in the
// sweeper package and is wired in with WithSweepService when hosts want it.
type CommandQueryService interface {
	reviewcommand.MutatingService
	reviewquery.StateReader
	reviewquery.AuditReader
	reviewquery.MetricsReader
}

type Commands struct {
	ApplyEvent *reviewcommand.ApplyEventCommand
	Sweep      *reviewcommand.SweepCommand
}

type Queries struct {
	GetState   *reviewquery.GetStateQuery
	GetAudit   *reviewquery.GetAuditQuery
	GetMetrics *reviewquery.GetMetricsQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	sweepService reviewcommand.SweepService
}

// WithSweepService attaches the maintenance sweep so hosts can dispatch it
// through the same command surface as event application.
func WithSweepService(service reviewcommand.SweepService) FacadeOption {
	return func(options *facadeOptions) {
		options.sweepService = service
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("review: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	sweeper := cfg.sweepService
	if sweeper == nil {
		sweeper, _ = service.(reviewcommand.SweepService)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		ApplyEvent: reviewcommand.NewApplyEventCommand(service),
	}
	if sweeper != nil {
		facade.commands.Sweep = reviewcommand.NewSweepCommand(sweeper)
	}
	facade.queries = Queries{
		GetState:   reviewquery.NewGetStateQuery(service),
		GetAudit:   reviewquery.NewGetAuditQuery(service),
		GetMetrics: reviewquery.NewGetMetricsQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
