// Package timeouts defines shared timeout constants used across the
// assistant. Centralizing these values prevents drift between boundaries
// and makes the durations discoverable.
package timeouts

import "time"

// RemoteCall caps the time allowed for a single round trip to the remote
// planning API. A timed-out call is classified as transient and retried by
// the resilience layer.
const RemoteCall = 10 * time.Second

// TokenRefresh caps the wait for an OAuth token refresh round trip.
const TokenRefresh = 15 * time.Second

// ReadHeader limits how long the inbound HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// Turn caps the handling of one inbound user message end to end,
// including retries against the remote planning API.
const Turn = 60 * time.Second
