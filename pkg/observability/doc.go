/*
Package observability turns engine lifecycle hooks into metrics and logs.

Hooks are plain callbacks (domain.LifecycleHooks). Chain merges several sets so
that a host can record Prometheus metrics, write an audit log and stream events
from the same call:

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	hooks := observability.Chain(metrics.Hooks(), observability.LoggingHooks(logger))
	eng, _ := callflow.New(repo, callflow.WithLifecycleHooks(hooks))
*/
package observability
