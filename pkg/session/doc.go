/*
Package session serialises access to persisted call state.

A call may be served by any replica. The Manager keeps one reference-counted
mutex per call id and, when configured with a ports.DistributedLocker,
also holds a cross-replica lock while a turn is processed.
*/
package session
