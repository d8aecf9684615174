package download

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/ytget/yt-audio/internal/model"
)

// yt-dlp invocation defaults
const (
	DefaultAudioSelector    = "bestaudio/best"
	DefaultMP3Quality       = "192"
	DefaultProgressInterval = 250 * time.Millisecond
	OutputTemplate          = "%(title)s.%(ext)s"
)

var (
	extractorTag = regexp.MustCompile(`ERROR: \[([^\]]+)\]`)

	extractionMarkers = []string{
		"Unsupported URL",
		"Video unavailable",
		"is not a valid URL",
		"Private video",
		"Sign in to confirm",
		"Unable to extract",
		"This video is not available",
	}

	downloadMarkers = []string{
		"unable to download",
		"HTTP Error",
		"Got error",
		"Connection reset",
		"timed out",
		"giving up after",
	}
)

// YTDLPEngine runs yt-dlp through go-ytdlp.
type YTDLPEngine struct {
	mp3Quality string
	interval   time.Duration
}

// EngineOption configures a YTDLPEngine.
type EngineOption func(*YTDLPEngine)

// WithMP3Quality sets the --audio-quality passed for mp3 output
func WithMP3Quality(quality string) EngineOption {
	return func(e *YTDLPEngine) {
		if quality != "" {
			e.mp3Quality = quality
		}
	}
}

// WithProgressInterval sets how often yt-dlp reports progress
func WithProgressInterval(d time.Duration) EngineOption {
	return func(e *YTDLPEngine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// NewYTDLPEngine creates an engine with the default audio settings
func NewYTDLPEngine(opts ...EngineOption) *YTDLPEngine {
	e := &YTDLPEngine{
		mp3Quality: DefaultMP3Quality,
		interval:   DefaultProgressInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Install makes sure a yt-dlp binary is available, downloading it if needed.
func Install(ctx context.Context) error {
	if _, err := ytdlp.Install(ctx, nil); err != nil {
		return fmt.Errorf("install yt-dlp: %w", err)
	}
	return nil
}

// Run downloads req.URL and converts it to req.Format, blocking until yt-dlp exits.
func (e *YTDLPEngine) Run(ctx context.Context, req Request, hooks Hooks) (EngineResult, error) {
	dl := e.command(req)

	tracker := newProgressTracker(hooks, true)
	dl.ProgressFunc(e.interval, tracker.handle)

	result, err := dl.Run(ctx, req.URL)
	if err != nil {
		stderr := ""
		if result != nil {
			stderr = result.Stderr
		}
		return EngineResult{}, classifyOutput(err.Error(), stderr)
	}

	out := EngineResult{Title: tracker.title()}
	if result != nil {
		info, infoErr := result.GetExtractedInfo()
		if infoErr == nil && len(info) > 0 {
			if info[0].Title != nil && *info[0].Title != "" {
				out.Title = *info[0].Title
			}
			if info[0].Filename != nil {
				out.Path = *info[0].Filename
			}
		}
	}
	if out.Path == "" {
		out.Path = tracker.filename()
	}
	if out.Title == "" && out.Path != "" {
		base := filepath.Base(out.Path)
		out.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	return out, nil
}

// command builds the yt-dlp invocation for req
func (e *YTDLPEngine) command(req Request) *ytdlp.Command {
	dl := ytdlp.New().
		Format(DefaultAudioSelector).
		ExtractAudio().
		AudioFormat(string(req.Format)).
		NoPlaylist().
		Output(filepath.Join(req.OutputDir, OutputTemplate))

	if req.Format == model.FormatMP3 {
		dl.AudioQuality(e.mp3Quality)
	}
	return dl
}

// progressTracker maps go-ytdlp progress callbacks to engine hooks. go-ytdlp
// calls it from its own output reader goroutine.
//
// The progress template only carries download hook statuses (downloading,
// finished, error). With audio extraction enabled the FFmpegExtractAudio
// post-processor starts right after the first finished status, so that
// status also marks the start of post-processing.
type progressTracker struct {
	hooks        Hooks
	extractAudio bool

	mu             sync.Mutex
	transferDone   bool
	postProcessing bool
	videoTitle     string
	outputFile     string
}

func newProgressTracker(hooks Hooks, extractAudio bool) *progressTracker {
	return &progressTracker{hooks: hooks, extractAudio: extractAudio}
}

func (t *progressTracker) handle(update ytdlp.ProgressUpdate) {
	t.mu.Lock()
	if update.Info != nil && update.Info.Title != nil && *update.Info.Title != "" && t.videoTitle == "" {
		t.videoTitle = *update.Info.Title
	}
	if update.Filename != "" {
		t.outputFile = update.Filename
	}

	var fire []func()
	switch update.Status {
	case ytdlp.ProgressStatusDownloading:
		if t.hooks.OnTransfer != nil {
			u := transferFrom(update)
			fire = append(fire, func() { t.hooks.OnTransfer(u) })
		}
	case ytdlp.ProgressStatusFinished:
		if !t.transferDone {
			t.transferDone = true
			fire = append(fire, t.hooks.OnTransferDone)
			if t.extractAudio {
				fire = append(fire, t.startPostProcessLocked())
			}
		}
	case ytdlp.ProgressStatusPostProcessing:
		fire = append(fire, t.startPostProcessLocked())
	}
	t.mu.Unlock()

	for _, fn := range fire {
		if fn != nil {
			fn()
		}
	}
}

// startPostProcessLocked returns the post-processing hook the first time it
// is called and nil afterwards. t.mu must be held.
func (t *progressTracker) startPostProcessLocked() func() {
	if t.postProcessing {
		return nil
	}
	t.postProcessing = true
	return t.hooks.OnPostProcess
}

func (t *progressTracker) title() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.videoTitle
}

func (t *progressTracker) filename() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outputFile
}

// transferFrom converts a go-ytdlp update to a TransferUpdate
func transferFrom(update ytdlp.ProgressUpdate) TransferUpdate {
	u := TransferUpdate{
		DownloadedBytes: int64(update.DownloadedBytes),
		TotalBytes:      int64(update.TotalBytes),
	}

	if !update.Started.IsZero() {
		elapsed := time.Since(update.Started)
		if elapsed.Seconds() > 0 {
			u.BytesPerSecond = float64(update.DownloadedBytes) / elapsed.Seconds()
		}
	}

	if eta := update.ETA(); eta > 0 {
		u.ETA = eta
	}
	return u
}

// classifyOutput maps a failed yt-dlp run to a classified engine error.
func classifyOutput(errText, stderr string) error {
	detail := firstErrorLine(stderr)
	if detail == "" {
		detail = strings.TrimSpace(errText)
	}
	combined := errText + "\n" + stderr

	if m := extractorTag.FindStringSubmatch(combined); m != nil && m[1] != "download" {
		return ExtractionFailure(detail)
	}
	for _, marker := range extractionMarkers {
		if strings.Contains(combined, marker) {
			return ExtractionFailure(detail)
		}
	}
	for _, marker := range downloadMarkers {
		if strings.Contains(combined, marker) {
			return DownloadFailure(detail)
		}
	}
	return fmt.Errorf("yt-dlp: %s", detail)
}

// firstErrorLine returns the first "ERROR:" line yt-dlp printed
func firstErrorLine(stderr string) string {
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "ERROR:") {
			return line
		}
	}
	return ""
}
