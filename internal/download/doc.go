package download

// Package download wraps the external extraction engine (yt-dlp, via
// github.com/lrstanley/go-ytdlp). It turns one blocking, callback-driven engine
// call into a sequence of phase events for a progress sink plus a terminal
// result, and classifies engine failures. It knows nothing about job storage.
