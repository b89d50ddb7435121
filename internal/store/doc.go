// Package store persists the conversation archive: session rows, message
// history, and per-exchange token usage.
//
// The manager's in-memory state is authoritative; the store is a
// write-through archive fed by the Recorder, which subscribes to manager
// events and persists them as they occur. Deleting a conversation in the
// manager does not purge its archive rows — history survives for usage
// reporting and transcripts.
package store
