package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-billing-sync/core"
)

type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialRetryPolicy doubles the delay per attempt, capped at Max.
type ExponentialRetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p ExponentialRetryPolicy) NextDelay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = time.Second
	}
	maximum := p.Max
	if maximum <= 0 {
		maximum = 30 * time.Second
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

// Processor drains the durable queue and drives ledger entries through
// processing. Reconciliation side effects live in the registered handlers;
// the processor owns only state transitions and retry bookkeeping.
type Processor struct {
	Ledger      core.LedgerStore
	Registry    *core.HandlerRegistry
	Dequeuer    core.JobDequeuer
	RetryPolicy RetryPolicy
	Hook        core.JobWorkerHook
	Logger      core.Logger
	Workers     int
	MaxAttempts int
	// LockDuration bounds how long one delivery may be processed. The queue
	// redelivers a message once its lock expires, so a handler running past
	// the lock would race its own redelivery. Zero disables the bound.
	LockDuration time.Duration
	Now          func() time.Time
}

func New(ledger core.LedgerStore, registry *core.HandlerRegistry, dequeuer core.JobDequeuer) *Processor {
	return &Processor{
		Ledger:      ledger,
		Registry:    registry,
		Dequeuer:    dequeuer,
		RetryPolicy: ExponentialRetryPolicy{},
		Workers:     5,
		MaxAttempts: 3,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Run blocks draining the queue with a fixed worker pool until the context is
// canceled.
func (p *Processor) Run(ctx context.Context) error {
	if p == nil || p.Ledger == nil || p.Registry == nil || p.Dequeuer == nil {
		return fmt.Errorf("processor: ledger, registry, and dequeuer are required")
	}

	workers := p.Workers
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.workLoop(ctx)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (p *Processor) workLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		delivery, err := p.Dequeuer.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			p.logError("dequeue failed", "error", err)
			continue
		}
		if delivery == nil {
			continue
		}
		p.HandleDelivery(ctx, delivery)
	}
}

// HandleDelivery processes one queue delivery and settles it. Messages
// without a usable event id are acked away as poison rather than requeued
// forever.
func (p *Processor) HandleDelivery(ctx context.Context, delivery core.JobDelivery) {
	msg := delivery.Message()
	eventID := messageEventID(msg)
	if eventID == "" {
		p.logError("dropping job without event id", "job_id", jobID(msg))
		if err := delivery.Ack(ctx); err != nil {
			p.logError("ack poison message", "error", err)
		}
		return
	}

	startedAt := p.now()
	p.hookStart(ctx, msg, startedAt)

	// Processing is bounded by the queue lock; settlement below stays on the
	// caller's context so an expired lock can still be nacked promptly.
	procCtx := ctx
	if p.LockDuration > 0 {
		var cancel context.CancelFunc
		procCtx, cancel = context.WithTimeout(ctx, p.LockDuration)
		defer cancel()
	}

	entry, err := p.ProcessEvent(procCtx, eventID)
	duration := p.now().Sub(startedAt)

	if err == nil {
		p.hookSuccess(ctx, msg, startedAt, duration)
		if ackErr := delivery.Ack(ctx); ackErr != nil {
			p.logError("ack processed event", "event_id", eventID, "error", ackErr)
		}
		return
	}

	terminal := core.IsTerminalProcessingError(err) || entry.RetryCount >= p.maxAttempts()
	if terminal {
		p.logError("event failed terminally",
			"event_id", eventID,
			"event_type", entry.EventType,
			"retry_count", entry.RetryCount,
			"error", err,
		)
		p.hookFailure(ctx, msg, startedAt, duration, err, entry.RetryCount)
		if nackErr := delivery.Nack(ctx, core.JobNackOptions{
			Requeue:    false,
			DeadLetter: true,
			Reason:     err.Error(),
		}); nackErr != nil {
			p.logError("nack terminal event", "event_id", eventID, "error", nackErr)
		}
		return
	}

	delay := p.retryDelay(entry.RetryCount)
	p.logInfo("event processing failed, scheduling retry",
		"event_id", eventID,
		"event_type", entry.EventType,
		"retry_count", entry.RetryCount,
		"delay", delay,
		"error", err,
	)
	p.hookRetry(ctx, msg, startedAt, duration, err, entry.RetryCount, delay)
	if nackErr := delivery.Nack(ctx, core.JobNackOptions{
		Delay:   delay,
		Requeue: true,
		Reason:  err.Error(),
	}); nackErr != nil {
		p.logError("nack retryable event", "event_id", eventID, "error", nackErr)
	}
}

// ProcessEvent transitions one ledger entry through processing. Unknown event
// types complete without side effects so the ledger stays an honest record of
// everything the provider delivered. The returned entry reflects the final
// state, including the retry count after a failure.
func (p *Processor) ProcessEvent(ctx context.Context, eventID string) (core.LedgerEntry, error) {
	if p == nil || p.Ledger == nil || p.Registry == nil {
		return core.LedgerEntry{}, fmt.Errorf("processor: ledger and registry are required")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return core.LedgerEntry{}, fmt.Errorf("processor: event id is required")
	}

	entry, err := p.Ledger.MarkProcessing(ctx, eventID)
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("processor: claim event %q: %w", eventID, err)
	}

	event, err := core.ParseWebhookEvent(entry.Payload)
	if err != nil {
		return p.fail(ctx, entry, core.NewValidationError(
			"stored webhook payload is malformed",
			map[string]any{"event_id": eventID, "cause": err.Error()},
		))
	}

	category := core.CategorizeEventType(entry.EventType)
	handler := p.Registry.Resolve(category)
	if category == core.EventCategoryUnknown || handler == nil {
		p.logInfo("completing event without handler",
			"event_id", eventID,
			"event_type", entry.EventType,
			"category", string(category),
		)
		if markErr := p.Ledger.MarkCompleted(ctx, eventID, p.now()); markErr != nil {
			return entry, fmt.Errorf("processor: complete unhandled event %q: %w", eventID, markErr)
		}
		entry.Status = core.LedgerStatusCompleted
		return entry, nil
	}

	handleErr := handler.Handle(ctx, core.EventContext{
		EventID:   entry.EventID,
		EventType: entry.EventType,
		Category:  category,
		ObjectID:  event.ObjectID(),
		Payload:   entry.Payload,
		Livemode:  entry.Livemode,
	})
	if handleErr != nil {
		return p.fail(ctx, entry, handleErr)
	}

	if markErr := p.Ledger.MarkCompleted(ctx, eventID, p.now()); markErr != nil {
		return entry, fmt.Errorf("processor: complete event %q: %w", eventID, markErr)
	}
	entry.Status = core.LedgerStatusCompleted
	return entry, nil
}

func (p *Processor) fail(ctx context.Context, entry core.LedgerEntry, cause error) (core.LedgerEntry, error) {
	failed, markErr := p.Ledger.MarkFailed(ctx, entry.EventID, cause)
	if markErr != nil {
		p.logError("mark event failed",
			"event_id", entry.EventID,
			"error", markErr,
		)
		return entry, cause
	}
	return failed, cause
}

func (p *Processor) maxAttempts() int {
	if p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return 3
}

func (p *Processor) retryDelay(attempt int) time.Duration {
	policy := p.RetryPolicy
	if policy == nil {
		policy = ExponentialRetryPolicy{}
	}
	return policy.NextDelay(attempt)
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

func (p *Processor) hookStart(ctx context.Context, msg *core.JobExecutionMessage, startedAt time.Time) {
	if p.Hook != nil {
		p.Hook.OnStart(ctx, core.JobWorkerEvent{Message: msg, StartedAt: startedAt})
	}
}

func (p *Processor) hookSuccess(ctx context.Context, msg *core.JobExecutionMessage, startedAt time.Time, duration time.Duration) {
	if p.Hook != nil {
		p.Hook.OnSuccess(ctx, core.JobWorkerEvent{Message: msg, StartedAt: startedAt, Duration: duration})
	}
}

func (p *Processor) hookFailure(ctx context.Context, msg *core.JobExecutionMessage, startedAt time.Time, duration time.Duration, err error, attempt int) {
	if p.Hook != nil {
		p.Hook.OnFailure(ctx, core.JobWorkerEvent{
			Message:   msg,
			Attempt:   attempt,
			Err:       err,
			StartedAt: startedAt,
			Duration:  duration,
		})
	}
}

func (p *Processor) hookRetry(ctx context.Context, msg *core.JobExecutionMessage, startedAt time.Time, duration time.Duration, err error, attempt int, delay time.Duration) {
	if p.Hook != nil {
		p.Hook.OnRetry(ctx, core.JobWorkerEvent{
			Message:   msg,
			Attempt:   attempt,
			Delay:     delay,
			Err:       err,
			StartedAt: startedAt,
			Duration:  duration,
		})
	}
}

func (p *Processor) logInfo(msg string, args ...any) {
	if p.Logger != nil {
		p.Logger.Info(msg, args...)
	}
}

func (p *Processor) logError(msg string, args ...any) {
	if p.Logger != nil {
		p.Logger.Error(msg, args...)
	}
}

func messageEventID(msg *core.JobExecutionMessage) string {
	if msg == nil || msg.Parameters == nil {
		return ""
	}
	value, _ := msg.Parameters["event_id"].(string)
	return strings.TrimSpace(value)
}

func jobID(msg *core.JobExecutionMessage) string {
	if msg == nil {
		return ""
	}
	return msg.JobID
}
