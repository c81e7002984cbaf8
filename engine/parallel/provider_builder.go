package parallel

import "github.com/Carmen-Shannon/oxy-deferred/engine/logger"

// ProviderBuilderOption is a functional option applied to a provider during construction via NewProvider.
type ProviderBuilderOption func(*provider)

// WithWorkers sets the number of worker contexts in addition to the master. Zero runs all work on the master.
//
// Parameters:
//   - n: the worker count; negative values are treated as zero
//
// Returns:
//   - ProviderBuilderOption: a function that applies the worker count option to a provider
func WithWorkers(n int) ProviderBuilderOption {
	return func(p *provider) {
		p.workers = max(n, 0)
	}
}

// WithReplayBacklog sets how many finished command lists may wait for replay on the master.
//
// Parameters:
//   - n: the backlog capacity
//
// Returns:
//   - ProviderBuilderOption: a function that applies the backlog option to a provider
func WithReplayBacklog(n int) ProviderBuilderOption {
	return func(p *provider) {
		p.backlog = n
	}
}

// WithLogger sets the logger used by the provider and its submitter.
//
// Parameters:
//   - l: the logger; nil selects a no-op logger
//
// Returns:
//   - ProviderBuilderOption: a function that applies the logger option to a provider
func WithLogger(l logger.Logger) ProviderBuilderOption {
	return func(p *provider) {
		p.log = logger.OrNop(l)
	}
}
