package redis

import "errors"

var (
	// ErrFailedToParseRedisConnString is returned when the connection URL is invalid.
	ErrFailedToParseRedisConnString = errors.New("failed to parse redis connection string")

	// ErrRedisNotReady is returned when all connection attempts fail.
	ErrRedisNotReady = errors.New("redis is not ready")

	// ErrHealthcheckFailed is returned when the health check ping fails.
	ErrHealthcheckFailed = errors.New("redis healthcheck failed")
)
