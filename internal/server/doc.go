package server

// Package server exposes the job service over HTTP: job creation, batch and
// playlist submission, polling endpoints and an optional websocket stream.
