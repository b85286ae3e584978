package billingsync

import (
	"fmt"

	billingcommand "github.com/goliatone/go-billing-sync/command"
	billingquery "github.com/goliatone/go-billing-sync/query"
)

// CommandQueryService is the full command/query surface the engine satisfies.
type CommandQueryService interface {
	billingcommand.MutatingService
	billingquery.LedgerReader
	billingquery.UsageReader
}

type Commands struct {
	ReplayEvent  *billingcommand.ReplayEventCommand
	ResyncEntity *billingcommand.ResyncEntityCommand
	RunSweep     *billingcommand.RunSweepCommand
	ReportUsage  *billingcommand.ReportUsageCommand
}

type Queries struct {
	GetLedgerEntry   *billingquery.GetLedgerEntryQuery
	ListFailedEvents *billingquery.ListFailedEventsQuery
	GetUsageSummary  *billingquery.GetUsageSummaryQuery
}

// Facade packages the command and query handlers around one service so hosts
// can mount them on a dispatcher without re-wiring each handler.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("billingsync: command/query service is required")
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		ReplayEvent:  billingcommand.NewReplayEventCommand(service),
		ResyncEntity: billingcommand.NewResyncEntityCommand(service),
		RunSweep:     billingcommand.NewRunSweepCommand(service),
		ReportUsage:  billingcommand.NewReportUsageCommand(service),
	}
	facade.queries = Queries{
		GetLedgerEntry:   billingquery.NewGetLedgerEntryQuery(service),
		ListFailedEvents: billingquery.NewListFailedEventsQuery(service),
		GetUsageSummary:  billingquery.NewGetUsageSummaryQuery(service),
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

var _ CommandQueryService = (*Engine)(nil)
