/*
Package observability turns workflow lifecycle events into Prometheus metrics
and structured log records.

Both are exposed as domain.LifecycleHooks, so they compose with each other and
with the SSE stream of the HTTP adapter through LifecycleHooks.Merge.
*/
package observability
