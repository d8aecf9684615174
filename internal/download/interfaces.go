package download

import (
	"context"
	"time"

	"github.com/ytget/yt-audio/internal/model"
)

// Request describes one extraction.
type Request struct {
	URL       string
	OutputDir string
	Format    model.Format
}

// Result is returned by a successful extraction.
type Result struct {
	Title    string
	Filename string
}

// ProgressSink receives phase events while an extraction runs.
type ProgressSink interface {
	OnProgress(p model.Progress)
}

// SinkFunc adapts a function to the ProgressSink interface.
type SinkFunc func(p model.Progress)

// OnProgress calls f(p).
func (f SinkFunc) OnProgress(p model.Progress) { f(p) }

// Downloader defines the interface consumed by the dispatcher.
type Downloader interface {
	Extract(ctx context.Context, req Request, sink ProgressSink) (*Result, error)
}

// TransferUpdate is one byte-level progress report from the engine.
type TransferUpdate struct {
	DownloadedBytes int64
	TotalBytes      int64
	BytesPerSecond  float64
	ETA             time.Duration
}

// Hooks are invoked by an Engine while it runs. Any hook may be nil.
type Hooks struct {
	OnTransfer     func(TransferUpdate)
	OnTransferDone func()
	OnPostProcess  func()
}

// EngineResult is what an Engine reports after a successful run.
type EngineResult struct {
	Title string
	Path  string
}

// Engine is the blocking, all-or-nothing extraction tool. Implementations
// signal failure classes by wrapping ErrEngineDownload or ErrEngineExtraction.
type Engine interface {
	Run(ctx context.Context, req Request, hooks Hooks) (EngineResult, error)
}
