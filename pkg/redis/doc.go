// Package redis provides helpers for connecting to a Redis server with
// retries and health checks.
//
// The dunning sweeps use Redis for best-effort daily reminder markers;
// everything tolerates Redis being unavailable.
package redis
