// Package database provides connection management for mysql, postgres and
// sqlite through Bun, table migrations for registered models, SQL error
// classification, query logging hooks and health checks.
package database
