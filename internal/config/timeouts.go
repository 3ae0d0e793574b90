// Timeout constants for the HTTP server.
//
// The API serves small JSON responses assembled from an in-memory
// snapshot, so request handling is fast. The write timeout still leaves
// headroom for the settings endpoints, which touch SQLite, and for slow
// clients on constrained networks.
package config

import "time"

const (
	// HTTPReadTimeout bounds reading a request. Requests are small
	// (query parameters plus an occasional tiny JSON body).
	HTTPReadTimeout = 10 * time.Second

	// HTTPWriteTimeout bounds writing a response, including handler time.
	HTTPWriteTimeout = 30 * time.Second

	// HTTPIdleTimeout bounds keep-alive connections.
	HTTPIdleTimeout = 120 * time.Second
)
