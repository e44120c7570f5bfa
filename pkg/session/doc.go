/*
Package session serializes access to workflow runs.

Two callers working on the same run ID never interleave: a ref-counted
per-run mutex covers a single process, and an optional DistributedLocker
(e.g. Redis) covers replicas sharing the same run store.
*/
package session
