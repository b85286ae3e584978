package command

import (
	"context"
	"testing"

	"github.com/goliatone/go-billing-sync/core"
	"github.com/goliatone/go-billing-sync/reconcile"
)

type stubService struct {
	replayed   []string
	resynced   [][2]string
	sweeps     []int
	usage      []core.UsageSubmission
	replayErr  error
	resyncErr  error
	sweepStats reconcile.SweepStats
}

func (s *stubService) ReplayEvent(ctx context.Context, eventID string) (core.LedgerEntry, error) {
	if s.replayErr != nil {
		return core.LedgerEntry{}, s.replayErr
	}
	s.replayed = append(s.replayed, eventID)
	return core.LedgerEntry{EventID: eventID, Status: core.LedgerStatusCompleted}, nil
}

func (s *stubService) ResyncEntity(ctx context.Context, kind core.EntityKind, externalID string) error {
	if s.resyncErr != nil {
		return s.resyncErr
	}
	s.resynced = append(s.resynced, [2]string{string(kind), externalID})
	return nil
}

func (s *stubService) RunSweep(ctx context.Context, batchSize int) (reconcile.SweepStats, error) {
	s.sweeps = append(s.sweeps, batchSize)
	return s.sweepStats, nil
}

func (s *stubService) ReportUsage(ctx context.Context, submission core.UsageSubmission) (core.UsageRecord, error) {
	s.usage = append(s.usage, submission)
	return core.UsageRecord{EventID: "mbe_1"}, nil
}

func TestReplayEventMessageValidate(t *testing.T) {
	if err := (ReplayEventMessage{EventID: "evt_1"}).Validate(); err != nil {
		t.Fatalf("valid message rejected: %v", err)
	}
	if err := (ReplayEventMessage{}).Validate(); err == nil {
		t.Fatal("expected missing event id rejected")
	}
	if got := (ReplayEventMessage{}).Type(); got != TypeReplayEvent {
		t.Fatalf("unexpected type %q", got)
	}
}

func TestResyncEntityMessageValidate(t *testing.T) {
	if err := (ResyncEntityMessage{Kind: "invoice", ExternalID: "in_1"}).Validate(); err != nil {
		t.Fatalf("valid message rejected: %v", err)
	}
	if err := (ResyncEntityMessage{Kind: "meter", ExternalID: "x"}).Validate(); err == nil {
		t.Fatal("expected unknown kind rejected")
	}
	if err := (ResyncEntityMessage{Kind: "invoice"}).Validate(); err == nil {
		t.Fatal("expected missing external id rejected")
	}
}

func TestReportUsageMessageValidate(t *testing.T) {
	valid := ReportUsageMessage{Submission: core.UsageSubmission{
		SubscriptionID: "sub_1", MeterID: "api_calls", Quantity: 1,
	}}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid message rejected: %v", err)
	}
	invalid := ReportUsageMessage{Submission: core.UsageSubmission{
		SubscriptionID: "sub_1", MeterID: "api_calls",
	}}
	if err := invalid.Validate(); err == nil {
		t.Fatal("expected zero quantity rejected")
	}
}

func TestReplayEventCommandExecute(t *testing.T) {
	service := &stubService{}
	cmd := NewReplayEventCommand(service)

	if err := cmd.Execute(context.Background(), ReplayEventMessage{EventID: "evt_1"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(service.replayed) != 1 || service.replayed[0] != "evt_1" {
		t.Fatalf("unexpected replays %v", service.replayed)
	}
}

func TestReplayEventCommandRequiresService(t *testing.T) {
	cmd := &ReplayEventCommand{}
	if err := cmd.Execute(context.Background(), ReplayEventMessage{EventID: "evt_1"}); err == nil {
		t.Fatal("expected dependency error")
	}
}

func TestResyncEntityCommandParsesKind(t *testing.T) {
	service := &stubService{}
	cmd := NewResyncEntityCommand(service)

	if err := cmd.Execute(context.Background(), ResyncEntityMessage{Kind: "customer", ExternalID: "cus_1"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(service.resynced) != 1 || service.resynced[0] != [2]string{"customer", "cus_1"} {
		t.Fatalf("unexpected resyncs %v", service.resynced)
	}

	if err := cmd.Execute(context.Background(), ResyncEntityMessage{Kind: "meter", ExternalID: "x"}); err == nil {
		t.Fatal("expected unknown kind rejected")
	}
}

func TestRunSweepCommandExecute(t *testing.T) {
	service := &stubService{sweepStats: reconcile.SweepStats{Claimed: 2, Resolved: 1, Deferred: 1}}
	cmd := NewRunSweepCommand(service)

	if err := cmd.Execute(context.Background(), RunSweepMessage{BatchSize: 25}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(service.sweeps) != 1 || service.sweeps[0] != 25 {
		t.Fatalf("unexpected sweeps %v", service.sweeps)
	}
}

func TestReportUsageCommandExecute(t *testing.T) {
	service := &stubService{}
	cmd := NewReportUsageCommand(service)

	err := cmd.Execute(context.Background(), ReportUsageMessage{Submission: core.UsageSubmission{
		SubscriptionID: "sub_1", MeterID: "api_calls", Quantity: 10,
	}})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(service.usage) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(service.usage))
	}
}
