// Package timeouts defines shared timeout constants used across services.
package timeouts

import "time"

// HealthProbe caps the wait for a gRPC health check to report SERVING.
const HealthProbe = 2 * time.Second

// StoreConnect caps the wait when opening a remote event store or bus.
const StoreConnect = 5 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second
