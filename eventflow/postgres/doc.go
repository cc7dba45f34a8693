// Package postgres provides the PostgreSQL event store: events, outbox
// entries, and delivery attempts persisted through database/sql with the pgx
// driver, claimed with FOR UPDATE SKIP LOCKED, and migrated from embedded
// SQL files.
package postgres
