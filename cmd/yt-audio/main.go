package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ytget/yt-audio/internal/cli"
	"github.com/ytget/yt-audio/internal/download"
	"github.com/ytget/yt-audio/internal/platform"
)

// Version is set during build via -ldflags "-X main.version=X.Y.Z"
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	app := &cli.App{
		Downloader: download.NewExtractor(download.NewYTDLPEngine()),
		Playlists:  platform.NewPlaylistExpander(),
		Version:    version,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	}
	code := app.Run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
