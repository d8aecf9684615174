package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/pflag"

	"github.com/ytget/yt-audio/internal/download"
	"github.com/ytget/yt-audio/internal/jobs"
	"github.com/ytget/yt-audio/internal/logging"
	"github.com/ytget/yt-audio/internal/model"
	"github.com/ytget/yt-audio/internal/platform"
	"github.com/ytget/yt-audio/internal/store"
	"github.com/ytget/yt-audio/internal/worker"
)

// Exit codes
const (
	ExitOK      = 0
	ExitFailure = 1
)

// Flag defaults
const (
	DefaultOutputDir = "."
	DefaultWorkers   = 3
	AppName          = "yt-audio"
)

// App is the command line front end. Downloader performs the extractions and
// Playlists, when set, enables --playlist.
type App struct {
	Downloader download.Downloader
	Playlists  jobs.PlaylistExpander
	Version    string
	Stdout     io.Writer
	Stderr     io.Writer
}

type options struct {
	file     string
	playlist string
	output   string
	format   string
	workers  int
	logLevel string
	version  bool
	url      string
}

// Run parses args (without the program name), runs every job to completion
// and returns the process exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	opts, err := a.parse(args)
	if errors.Is(err, pflag.ErrHelp) {
		return ExitOK
	}
	if err != nil {
		fmt.Fprintf(a.Stderr, "Error: %v\n", err)
		return ExitFailure
	}

	if opts.version {
		fmt.Fprintf(a.Stdout, "%s %s\n", AppName, a.Version)
		return ExitOK
	}

	logger := logging.New(opts.logLevel, logging.FormatText, a.Stderr)

	if err := a.run(ctx, opts, logger); err != nil {
		fmt.Fprintf(a.Stderr, "Error: %v\n", err)
		return ExitFailure
	}
	return ExitOK
}

func (a *App) parse(args []string) (*options, error) {
	var opts options

	fs := pflag.NewFlagSet(AppName, pflag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	fs.Usage = func() {
		fmt.Fprintf(a.Stderr, "Usage: %s [flags] [url]\n\nFlags:\n", AppName)
		fs.PrintDefaults()
	}

	fs.StringVarP(&opts.file, "file", "i", "", "read URLs from a file, one per line (# comments allowed)")
	fs.StringVarP(&opts.playlist, "playlist", "p", "", "download every entry of a playlist")
	fs.StringVarP(&opts.output, "output", "o", DefaultOutputDir, "output directory")
	fs.StringVarP(&opts.format, "format", "f", string(model.DefaultFormat), "audio format ("+formatList(" or ")+")")
	fs.IntVarP(&opts.workers, "workers", "w", DefaultWorkers, "number of parallel downloads")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	fs.BoolVar(&opts.version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.version {
		return &opts, nil
	}

	switch fs.NArg() {
	case 0:
	case 1:
		opts.url = fs.Arg(0)
	default:
		return nil, fmt.Errorf("expected at most one url, got %d", fs.NArg())
	}

	sources := 0
	for _, s := range []string{opts.url, opts.file, opts.playlist} {
		if s != "" {
			sources++
		}
	}
	if sources != 1 {
		return nil, errors.New("provide exactly one of a url, --file or --playlist")
	}
	if opts.workers < worker.MinWorkers {
		return nil, fmt.Errorf("--workers must be at least %d", worker.MinWorkers)
	}
	return &opts, nil
}

func (a *App) run(ctx context.Context, opts *options, logger *slog.Logger) error {
	format, err := jobs.ValidateFormat(model.Format(opts.format))
	if err != nil {
		return err
	}

	var urls []string
	if opts.file != "" {
		urls, err = platform.ReadURLFile(opts.file)
		if err != nil {
			return err
		}
		if len(urls) == 0 {
			return fmt.Errorf("no URLs found in %s", opts.file)
		}
	}

	outputDir, err := platform.SelectOutputDirectory(opts.output)
	if err != nil {
		return err
	}

	st := store.New()
	printer := newProgressPrinter(a.Stdout)
	st.Subscribe(printer)

	dispatcher := worker.New(st, a.Downloader, outputDir, opts.workers, worker.WithLogger(logger))
	svc := jobs.NewService(st, dispatcher, jobs.WithPlaylistExpander(a.Playlists), jobs.WithLogger(logger))

	playlistURL := opts.playlist
	if opts.url != "" && a.Playlists != nil && platform.IsPlaylistURL(opts.url) {
		playlistURL = opts.url
	}

	var ids []string
	failed := 0
	switch {
	case playlistURL != "":
		if a.Playlists == nil {
			return errors.New("playlist downloads are not available")
		}
		batch, err := svc.CreatePlaylistBatch(ctx, playlistURL, format, 0)
		if err != nil {
			return err
		}
		ids = batch.DownloadIDs
	case opts.url != "":
		job, err := svc.Create(opts.url, format)
		if err != nil {
			return err
		}
		ids = append(ids, job.ID)
	default:
		for _, u := range urls {
			job, err := svc.Create(u, format)
			if err != nil {
				fmt.Fprintf(a.Stdout, "✗ %s: %v\n", u, err)
				failed++
				continue
			}
			ids = append(ids, job.ID)
		}
	}

	total := len(ids) + failed
	fmt.Fprintf(a.Stdout, "Downloading %d item(s) to %s as %s with %d worker(s)\n",
		total, outputDir, format, dispatcher.Workers())

	done := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		fmt.Fprintln(a.Stdout, "Interrupted, unfinished downloads were abandoned")
		return ctx.Err()
	}

	succeeded := 0
	for _, id := range ids {
		if job, ok := st.Get(id); ok && job.Succeeded() {
			succeeded++
		}
	}
	fmt.Fprintf(a.Stdout, "Completed: %d/%d succeeded\n", succeeded, total)

	if succeeded != total {
		return fmt.Errorf("%d of %d downloads failed", total-succeeded, total)
	}
	return nil
}

// progressPrinter writes a line whenever a job changes phase.
type progressPrinter struct {
	mu   sync.Mutex
	out  io.Writer
	last map[string]model.JobStatus
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out, last: make(map[string]model.JobStatus)}
}

// JobChanged implements store.Observer.
func (p *progressPrinter) JobChanged(job model.Job) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.last[job.ID] == job.Status {
		return
	}
	p.last[job.ID] = job.Status

	switch job.Status {
	case model.StatusQueued:
		return
	case model.StatusCompleted:
		fmt.Fprintf(p.out, "✓ %s -> %s\n", job.GetDisplayTitle(), job.Filename)
	case model.StatusFailed:
		fmt.Fprintf(p.out, "✗ %s: %s\n", job.URL, job.Error)
	default:
		fmt.Fprintf(p.out, "  %s: %s%s\n", job.URL, job.Status, progressDetail(job.Progress))
	}
}

func formatList(sep string) string {
	names := make([]string, 0, len(model.Formats()))
	for _, f := range model.Formats() {
		names = append(names, f.String())
	}
	return strings.Join(names, sep)
}

func progressDetail(p *model.Progress) string {
	if p == nil {
		return ""
	}
	var parts []string
	for _, s := range []string{p.Percent, p.Speed} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if p.ETA != "" {
		parts = append(parts, "ETA "+p.ETA)
	}
	if len(parts) == 0 {
		return ""
	}
	return " " + strings.Join(parts, " ")
}
