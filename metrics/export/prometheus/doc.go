// Package prometheus exposes credcore metrics as a prometheus.Collector.
//
// Register [NewCollector] on any registry, or mount [Collector.Handler] for a
// standalone endpoint. Counter names are credcore_*_total; the single
// histogram is credcore_validate_latency_seconds. The collector never touches
// the default registry.
package prometheus
