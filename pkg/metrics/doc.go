// Package metrics defines every Prometheus series this runtime exposes
// (task lifecycle counters, scheduling latency, replica transfer
// bytes/latency, worker busy gauges) plus a generic component health
// registry (RegisterComponent/GetHealth/GetReadiness) exposed over
// HealthHandler/ReadyHandler/LivenessHandler. cmd/taskrunner serve mounts
// Handler() and the health handlers on a second HTTP listener alongside
// the gRPC gateway.
package metrics
