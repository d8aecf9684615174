// Package cli implements the yt-audio command: it reads URLs from an
// argument, a file or a playlist, converts them with a bounded worker pool
// and prints per-job progress and a summary.
package cli
