package logging

// Package logging builds the process-wide slog logger from LOG_LEVEL and
// LOG_FORMAT.
