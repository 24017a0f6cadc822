// Package processor hosts the workers that drain the confirmation outbox.
// Every worker consumes confirmations from the queue and hands them to the
// dispatcher; failed sends are nacked so the queue can retry them.
package processor
