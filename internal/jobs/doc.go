package jobs

// Package jobs is the request surface shared by the HTTP server and the CLI.
// It validates URLs and formats, creates queued job records and hands them to
// the dispatcher without waiting for any extraction.
