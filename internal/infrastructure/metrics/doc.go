// Package metrics exposes hapticd's Prometheus collectors.
//
// Usage:
//
//	m := metrics.New()
//	sched := playback.New(registry, bridge, playback.Options{Observer: m})
//	router.Handle("/api/v1/metrics", m.Handler())
package metrics
