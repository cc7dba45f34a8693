// Package rabbitmq schedules outbox batch processing on RabbitMQ. The
// enqueuer publishes batch jobs for an external consumer; running those jobs
// is the consumer's responsibility.
package rabbitmq
