// Package session persists research sessions and coordinates their
// execution. The Store interface abstracts the persistence backend; an
// in-memory store serves tests and ephemeral use, the SQLite store durable
// deployments. The Manager ties a store to the live registry and runs one
// orchestrator per active session.
package session
