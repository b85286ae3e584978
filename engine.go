package billingsync

import (
	"context"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-billing-sync/adapters/gologger"
	"github.com/goliatone/go-billing-sync/core"
	"github.com/goliatone/go-billing-sync/ingress"
	"github.com/goliatone/go-billing-sync/notify"
	"github.com/goliatone/go-billing-sync/processor"
	"github.com/goliatone/go-billing-sync/reconcile"
	"github.com/goliatone/go-billing-sync/usage"
)

// Engine is the composition root. It resolves configuration, wires the
// webhook receiver, queue processor, reconciler, usage reporter, and
// notification pipeline against one store provider and one provider client,
// and exposes the command/query surfaces over the result.
type Engine struct {
	config         core.Config
	logger         core.Logger
	loggerProvider core.LoggerProvider
	queueLogging   gologger.QueueLogging

	stores   core.StoreProvider
	provider core.ProviderClient

	registry   *core.HandlerRegistry
	receiver   *ingress.Receiver
	processor  *processor.Processor
	reconciler *reconcile.Reconciler
	sweeper    *reconcile.Sweeper
	reporter   *usage.Reporter
	dispatcher *notify.Dispatcher
	consumer   *notify.Consumer
}

type Option func(*engineOptions)

type engineOptions struct {
	rawConfig      map[string]any
	runtimeConfig  core.Config
	hasRuntime     bool
	logger         core.Logger
	loggerProvider core.LoggerProvider
	stores         core.StoreProvider
	storeFactory   core.RepositoryStoreFactory
	persistence    any
	provider       core.ProviderClient
	enqueuer       core.JobEnqueuer
	dequeuer       core.JobDequeuer
	workerHook     core.JobWorkerHook
	sender         notify.Sender
}

// WithRawConfig feeds file or environment sourced values through the config
// pipeline before defaults and runtime overrides are layered.
func WithRawConfig(values map[string]any) Option {
	return func(o *engineOptions) {
		o.rawConfig = values
	}
}

// WithRuntimeConfig applies the highest-precedence configuration layer.
func WithRuntimeConfig(cfg core.Config) Option {
	return func(o *engineOptions) {
		o.runtimeConfig = cfg
		o.hasRuntime = true
	}
}

func WithLogger(logger core.Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(o *engineOptions) {
		o.loggerProvider = provider
	}
}

func WithStores(stores core.StoreProvider) Option {
	return func(o *engineOptions) {
		o.stores = stores
	}
}

// WithStoreFactory builds the store provider from a persistence client, such
// as a bun handle or a go-persistence-bun client.
func WithStoreFactory(factory core.RepositoryStoreFactory, persistenceClient any) Option {
	return func(o *engineOptions) {
		o.storeFactory = factory
		o.persistence = persistenceClient
	}
}

func WithProviderClient(client core.ProviderClient) Option {
	return func(o *engineOptions) {
		o.provider = client
	}
}

func WithEnqueuer(enqueuer core.JobEnqueuer) Option {
	return func(o *engineOptions) {
		o.enqueuer = enqueuer
	}
}

func WithDequeuer(dequeuer core.JobDequeuer) Option {
	return func(o *engineOptions) {
		o.dequeuer = dequeuer
	}
}

func WithWorkerHook(hook core.JobWorkerHook) Option {
	return func(o *engineOptions) {
		o.workerHook = hook
	}
}

// WithNotificationSender enables the notification consumer. Without a sender
// the dispatcher still enqueues; consumption is left to the host.
func WithNotificationSender(sender notify.Sender) Option {
	return func(o *engineOptions) {
		o.sender = sender
	}
}

func New(ctx context.Context, opts ...Option) (*Engine, error) {
	options := engineOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&options)
	}

	config, err := resolveConfig(ctx, options)
	if err != nil {
		return nil, err
	}

	loggerProvider, logger, queueLogging := gologger.ResolveWithQueue(
		config.ServiceName, options.loggerProvider, options.logger,
	)

	stores := options.stores
	if stores == nil && options.storeFactory != nil {
		built, buildErr := options.storeFactory.BuildStores(options.persistence)
		if buildErr != nil {
			return nil, fmt.Errorf("billingsync: build stores: %w", buildErr)
		}
		stores = built
	}
	if stores == nil {
		return nil, fmt.Errorf("billingsync: a store provider is required")
	}
	if options.provider == nil {
		return nil, fmt.Errorf("billingsync: a provider client is required")
	}
	if options.enqueuer == nil {
		return nil, fmt.Errorf("billingsync: a job enqueuer is required")
	}

	engine := &Engine{
		config:         config,
		logger:         logger,
		loggerProvider: loggerProvider,
		queueLogging:   queueLogging,
		stores:         stores,
		provider:       options.provider,
	}

	engine.reconciler = &reconcile.Reconciler{
		Provider:      options.provider,
		Customers:     stores.CustomerStore(),
		Subscriptions: stores.SubscriptionStore(),
		Products:      stores.ProductStore(),
		Prices:        stores.PriceStore(),
		Invoices:      stores.InvoiceStore(),
		Skips:         stores.SkipStore(),
		Logger:        loggerProvider.GetLogger("billing.reconcile"),
	}

	engine.dispatcher = &notify.Dispatcher{
		Enqueuer: options.enqueuer,
		Logger:   loggerProvider.GetLogger("billing.notify"),
	}

	engine.registry = core.NewHandlerRegistry()
	if err := reconcile.RegisterHandlers(
		engine.registry,
		engine.reconciler,
		engine.dispatcher,
		loggerProvider.GetLogger("billing.handlers"),
	); err != nil {
		return nil, fmt.Errorf("billingsync: register handlers: %w", err)
	}

	engine.receiver = &ingress.Receiver{
		Verifier: ingress.NewSignatureVerifier(config.Webhook.SigningSecret, config.Webhook.Tolerance),
		Ledger:   stores.LedgerStore(),
		Enqueuer: options.enqueuer,
		Logger:   loggerProvider.GetLogger("billing.ingress"),
	}

	engine.processor = &processor.Processor{
		Ledger:   stores.LedgerStore(),
		Registry: engine.registry,
		Dequeuer: options.dequeuer,
		RetryPolicy: processor.ExponentialRetryPolicy{
			Initial: config.Queue.InitialBackoff,
			Max:     config.Queue.MaxBackoff,
		},
		Hook:         options.workerHook,
		Logger:       loggerProvider.GetLogger("billing.processor"),
		Workers:      config.Queue.Workers,
		MaxAttempts:  config.Queue.MaxAttempts,
		LockDuration: config.Queue.LockDuration,
	}

	engine.sweeper = &reconcile.Sweeper{
		Skips:      stores.SkipStore(),
		Reconciler: engine.reconciler,
		BatchSize:  config.Sweep.BatchSize,
		Logger:     loggerProvider.GetLogger("billing.sweeper"),
	}

	engine.reporter = &usage.Reporter{
		Provider: options.provider,
		Store:    stores.UsageStore(),
		Logger:   loggerProvider.GetLogger("billing.usage"),
	}

	if options.sender != nil {
		engine.consumer = &notify.Consumer{
			Ledger: stores.NotificationDispatchLedger(),
			Sender: options.sender,
			Logger: loggerProvider.GetLogger("billing.notify.consumer"),
		}
	}

	return engine, nil
}

func resolveConfig(ctx context.Context, options engineOptions) (core.Config, error) {
	defaults := core.DefaultConfig()

	loaded := defaults
	if options.rawConfig != nil {
		provider := core.NewCfgxConfigProvider(core.NewStaticRawConfigLoader(options.rawConfig))
		cfg, err := provider.Load(ctx, defaults)
		if err != nil {
			return core.Config{}, fmt.Errorf("billingsync: load config: %w", err)
		}
		loaded = cfg
	}

	runtime := core.Config{}
	if options.hasRuntime {
		runtime = options.runtimeConfig
	}

	resolved, err := core.GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		return core.Config{}, fmt.Errorf("billingsync: resolve config: %w", err)
	}
	if err := resolved.Validate(); err != nil {
		return core.Config{}, err
	}
	return resolved, nil
}

// Run starts the queue workers and blocks until ctx is canceled. It requires
// a dequeuer to have been configured.
func (e *Engine) Run(ctx context.Context) error {
	if e == nil || e.processor == nil {
		return fmt.Errorf("billingsync: engine is not configured")
	}
	return e.processor.Run(ctx)
}

// Receive verifies and admits one webhook delivery.
func (e *Engine) Receive(ctx context.Context, body []byte, signatureHeader string) (ingress.Receipt, error) {
	if e == nil || e.receiver == nil {
		return ingress.Receipt{}, fmt.Errorf("billingsync: engine is not configured")
	}
	return e.receiver.Receive(ctx, body, signatureHeader)
}

// ReplayEvent re-drives one ledgered event through the full processing path.
func (e *Engine) ReplayEvent(ctx context.Context, eventID string) (core.LedgerEntry, error) {
	if e == nil || e.processor == nil {
		return core.LedgerEntry{}, fmt.Errorf("billingsync: engine is not configured")
	}
	if _, err := e.processor.ProcessEvent(ctx, eventID); err != nil {
		return core.LedgerEntry{}, err
	}
	return e.stores.LedgerStore().GetByEventID(ctx, eventID)
}

// ResyncEntity refetches one entity from the provider and upserts the mirror.
func (e *Engine) ResyncEntity(ctx context.Context, kind core.EntityKind, externalID string) error {
	if e == nil || e.reconciler == nil {
		return fmt.Errorf("billingsync: engine is not configured")
	}
	return e.reconciler.Sync(ctx, kind, externalID)
}

// RunSweep re-drives pending skips. A positive batchSize overrides the
// configured sweep batch for this run only.
func (e *Engine) RunSweep(ctx context.Context, batchSize int) (reconcile.SweepStats, error) {
	if e == nil || e.sweeper == nil {
		return reconcile.SweepStats{}, fmt.Errorf("billingsync: engine is not configured")
	}
	sweeper := *e.sweeper
	if batchSize > 0 {
		sweeper.BatchSize = batchSize
	}
	return sweeper.Sweep(ctx)
}

// ReportUsage submits a metered usage quantity provider-first, then mirrors
// the accepted submission locally.
func (e *Engine) ReportUsage(ctx context.Context, submission core.UsageSubmission) (core.UsageRecord, error) {
	if e == nil || e.reporter == nil {
		return core.UsageRecord{}, fmt.Errorf("billingsync: engine is not configured")
	}
	return e.reporter.Report(ctx, submission)
}

func (e *Engine) GetLedgerEntry(ctx context.Context, eventID string) (core.LedgerEntry, error) {
	if e == nil || e.stores == nil {
		return core.LedgerEntry{}, fmt.Errorf("billingsync: engine is not configured")
	}
	return e.stores.LedgerStore().GetByEventID(ctx, eventID)
}

func (e *Engine) ListFailedEvents(ctx context.Context, limit int) ([]core.LedgerEntry, error) {
	if e == nil || e.stores == nil {
		return nil, fmt.Errorf("billingsync: engine is not configured")
	}
	return e.stores.LedgerStore().ListFailed(ctx, limit)
}

func (e *Engine) GetUsageSummary(
	ctx context.Context,
	subscriptionID string,
	start time.Time,
	end time.Time,
) (core.UsageSummary, error) {
	if e == nil || e.reporter == nil {
		return core.UsageSummary{}, fmt.Errorf("billingsync: engine is not configured")
	}
	return e.reporter.Summary(ctx, subscriptionID, start, end)
}

// HandleNotification consumes one notification job. It errors when no sender
// was configured.
func (e *Engine) HandleNotification(ctx context.Context, msg *core.JobExecutionMessage) error {
	if e == nil || e.consumer == nil {
		return fmt.Errorf("billingsync: notification sender is not configured")
	}
	return e.consumer.Handle(ctx, msg)
}

func (e *Engine) Config() core.Config {
	if e == nil {
		return core.Config{}
	}
	return e.config
}

func (e *Engine) Logger() core.Logger {
	if e == nil {
		return glog.Nop()
	}
	return e.logger
}

// QueueLogging returns the go-job logger bridges derived from the engine's
// resolved logger. Hosts pass them to the go-job queue and worker they build
// so queue internals share the engine's log sink.
func (e *Engine) QueueLogging() gologger.QueueLogging {
	if e == nil {
		return gologger.QueueLogging{}
	}
	return e.queueLogging
}

func (e *Engine) Registry() *core.HandlerRegistry {
	if e == nil {
		return nil
	}
	return e.registry
}

func (e *Engine) Stores() core.StoreProvider {
	if e == nil {
		return nil
	}
	return e.stores
}
