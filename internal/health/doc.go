// Package health implements the liveness and readiness surface of order-api.
//
// A [Spec] names one dependency check, bounds it with its own timeout and
// turns whatever happens into a tagged [Result] (Up, or Down with a short
// detail). Specs are registered once in a [Set]. The [Aggregator] runs every
// spec of the set concurrently on each readiness request, waits for all of
// them, and reduces the results with [Summarize] into a [Report] whose
// overall status is Up only when every dependency is Up.
//
// Probe failures are data, never errors: the only error the aggregator
// returns is [ErrNoProbeSet]. Nothing is cached between requests.
package health
