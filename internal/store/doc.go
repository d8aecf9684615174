package store

// Package store keeps the in-memory job records of the process. It is the
// single source of truth for status reads and serializes every create and
// update so readers never observe a half-applied mutation. Records are never
// evicted: memory grows with the number of submitted jobs.
