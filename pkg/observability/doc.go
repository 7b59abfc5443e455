/*
Package observability exposes Prometheus metrics for the softbus core.

Metrics are registered on a caller-provided registry rather than the global
default, so tests and embedded brokers stay isolated.

  - softbus_dispatch_requests_total{op,result}: privileged requests by outcome.
  - softbus_dispatch_duration_seconds{op}: handler latency.
  - softbus_client_sessions: live sessions held by a client.
*/
package observability
