// Package metrics exposes retrieval and ingestion activity as Prometheus
// metrics.
//
// A Collector owns its registry so several databases can live in one
// process. NewSearchMonitor returns a per-call search.SearchMonitor; wire it
// into a searcher with search.WithMonitorFactory.
package metrics
