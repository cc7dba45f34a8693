// Package eventflow provides a workflow event registry backed by a
// transactional outbox.
//
// Producers publish immutable WorkflowEvents; registered handlers execute them
// with retry, backoff, and dead-lettering. The in-memory registry routes
// synchronously for single-process use, while the database registry persists
// events and outbox entries transactionally and tracks per-handler delivery
// attempts so handler side effects run at most once across retries and
// claim reclaims. PostgreSQL adapters live under the postgres subpackage and
// a task-queue adapter under rabbitmq.
package eventflow
