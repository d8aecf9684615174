package platform

// Package platform contains OS and external tooling glue: output directory
// selection, URL list files, locating finished audio files on disk and
// playlist expansion via ytdlp/v2.
