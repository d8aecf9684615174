package storage

// Package storage mirrors finished audio files to an S3-compatible bucket
// through minio-go.
