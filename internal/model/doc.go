package model

// Package model defines domain data structures shared by the job store, the
// dispatcher and the request surfaces: download jobs, progress snapshots,
// batches, playlists and the status enum with its transition rules.
