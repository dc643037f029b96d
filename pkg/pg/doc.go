// Package pg provides PostgreSQL connectivity helpers built on pgx: pool
// construction with retries, health checks, embedded goose migrations, and
// error classifiers shared by the billing stores.
package pg
