// Package metrics exposes Prometheus counters, histograms, and gauges for
// the provisioning and supervision pipeline: download outcomes and
// throughput, lockfile wait time, and instance state transitions.
//
// Metrics are package-level and self-registering via an init func.
// Hosting programs
// that already run an HTTP server can mount Handler() on a path; nothing
// in this module starts a listener on its own.
package metrics
