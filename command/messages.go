package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-billing-sync/core"
)

const (
	TypeReplayEvent  = "billing.command.event.replay"
	TypeResyncEntity = "billing.command.entity.resync"
	TypeRunSweep     = "billing.command.sweep.run"
	TypeReportUsage  = "billing.command.usage.report"
)

// ReplayEventMessage re-drives one ledger entry through processing,
// regardless of its current status. Operator recovery surface for events
// that exhausted queue retries.
type ReplayEventMessage struct {
	EventID string
}

func (ReplayEventMessage) Type() string { return TypeReplayEvent }

func (m ReplayEventMessage) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return fmt.Errorf("command: event id is required")
	}
	return nil
}

// ResyncEntityMessage forces a provider fetch and upsert for one entity.
type ResyncEntityMessage struct {
	Kind       string
	ExternalID string
}

func (ResyncEntityMessage) Type() string { return TypeResyncEntity }

func (m ResyncEntityMessage) Validate() error {
	if _, err := core.ParseEntityKind(m.Kind); err != nil {
		return fmt.Errorf("command: %w", err)
	}
	if strings.TrimSpace(m.ExternalID) == "" {
		return fmt.Errorf("command: external id is required")
	}
	return nil
}

// RunSweepMessage triggers one sweep pass over pending sync skips.
type RunSweepMessage struct {
	BatchSize int
}

func (RunSweepMessage) Type() string { return TypeRunSweep }

func (m RunSweepMessage) Validate() error {
	if m.BatchSize < 0 {
		return fmt.Errorf("command: batch size must be >= 0")
	}
	return nil
}

// ReportUsageMessage submits metered usage to the provider.
type ReportUsageMessage struct {
	Submission core.UsageSubmission
}

func (ReportUsageMessage) Type() string { return TypeReportUsage }

func (m ReportUsageMessage) Validate() error {
	if strings.TrimSpace(m.Submission.SubscriptionID) == "" {
		return fmt.Errorf("command: subscription id is required")
	}
	if strings.TrimSpace(m.Submission.MeterID) == "" {
		return fmt.Errorf("command: meter id is required")
	}
	if m.Submission.Quantity <= 0 {
		return fmt.Errorf("command: quantity must be positive")
	}
	return nil
}
