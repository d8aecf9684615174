package worker

// Package worker runs accepted download jobs in the background through a
// bounded pool. Each job gets its own goroutine which waits for a pool slot,
// marks the job processing, mirrors the adapter's progress events into the
// store and finally writes exactly one terminal result.
