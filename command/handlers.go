package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-billing-sync/core"
	"github.com/goliatone/go-billing-sync/reconcile"
)

// MutatingService is the write surface the engine exposes to the command
// layer.
type MutatingService interface {
	ReplayEvent(ctx context.Context, eventID string) (core.LedgerEntry, error)
	ResyncEntity(ctx context.Context, kind core.EntityKind, externalID string) error
	RunSweep(ctx context.Context, batchSize int) (reconcile.SweepStats, error)
	ReportUsage(ctx context.Context, submission core.UsageSubmission) (core.UsageRecord, error)
}

type ReplayEventCommand struct {
	service MutatingService
}

func NewReplayEventCommand(service MutatingService) *ReplayEventCommand {
	return &ReplayEventCommand{service: service}
}

func (c *ReplayEventCommand) Execute(ctx context.Context, msg ReplayEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: replay service is required")
	}
	out, err := c.service.ReplayEvent(ctx, msg.EventID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ResyncEntityCommand struct {
	service MutatingService
}

func NewResyncEntityCommand(service MutatingService) *ResyncEntityCommand {
	return &ResyncEntityCommand{service: service}
}

func (c *ResyncEntityCommand) Execute(ctx context.Context, msg ResyncEntityMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: resync service is required")
	}
	kind, err := core.ParseEntityKind(msg.Kind)
	if err != nil {
		return commandInvalidInputError(err.Error())
	}
	return c.service.ResyncEntity(ctx, kind, msg.ExternalID)
}

type RunSweepCommand struct {
	service MutatingService
}

func NewRunSweepCommand(service MutatingService) *RunSweepCommand {
	return &RunSweepCommand{service: service}
}

func (c *RunSweepCommand) Execute(ctx context.Context, msg RunSweepMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: sweep service is required")
	}
	out, err := c.service.RunSweep(ctx, msg.BatchSize)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ReportUsageCommand struct {
	service MutatingService
}

func NewReportUsageCommand(service MutatingService) *ReportUsageCommand {
	return &ReportUsageCommand{service: service}
}

func (c *ReportUsageCommand) Execute(ctx context.Context, msg ReportUsageMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: usage service is required")
	}
	out, err := c.service.ReportUsage(ctx, msg.Submission)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
