package gologger

import (
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// Resolve picks the billing logger with deterministic precedence: provider,
// then direct logger, then nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// QueueLogging is the go-job flavored view of the resolved billing logger.
// Hosts hand it to the go-job queue and worker they build around the engine
// so queue internals log through the same sink as the engine itself.
type QueueLogging struct {
	Provider job.LoggerProvider
	Logger   job.Logger
}

// ResolveWithQueue resolves the billing logger and derives the go-job bridges
// from the same resolution, keeping engine and queue logging in agreement.
func ResolveWithQueue(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, QueueLogging) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)

	bridge := QueueLogging{}
	if resolvedProvider != nil {
		bridge.Provider = job.GoLoggerProvider(resolvedProvider)
	}
	if resolvedLogger != nil {
		bridge.Logger = job.GoLogger(resolvedLogger)
	}
	return resolvedProvider, resolvedLogger, bridge
}
