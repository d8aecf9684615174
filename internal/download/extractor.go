package download

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/ytget/yt-audio/internal/model"
)

// Phase names reported through the progress sink
const (
	PhaseExtracting  = "extracting"
	PhaseDownloading = "downloading"
	PhaseConverting  = "converting"
	PhaseComplete    = "complete"
)

// Fixed markers for the conversion phase
const (
	ConversionStartPercent   = "10%"
	ConversionStartMessage   = "Starting conversion..."
	ConversionRunningPercent = "50%"
	ConversionRunningMessage = "Converting to audio..."
	UnknownValue             = "N/A"
)

// Extractor adapts an Engine to the phase vocabulary of a job.
type Extractor struct {
	engine Engine
}

// NewExtractor creates an extractor on top of engine
func NewExtractor(engine Engine) *Extractor {
	return &Extractor{engine: engine}
}

// Extract runs one blocking engine call. Every failure, including a panic in
// the engine, is returned as a *Error.
func (x *Extractor) Extract(ctx context.Context, req Request, sink ProgressSink) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fromPanic(req.URL, r)
		}
	}()

	emit := func(p model.Progress) {
		if sink != nil {
			sink.OnProgress(p)
		}
	}

	emit(model.Progress{Status: PhaseExtracting, URL: req.URL})

	var transferDone atomic.Bool
	hooks := Hooks{
		OnTransfer: func(u TransferUpdate) {
			emit(transferProgress(u))
		},
		OnTransferDone: func() {
			transferDone.Store(true)
			emit(model.Progress{
				Status:  PhaseConverting,
				Percent: ConversionStartPercent,
				Message: ConversionStartMessage,
			})
		},
		OnPostProcess: func() {
			if !transferDone.Load() {
				return
			}
			emit(model.Progress{
				Status:  PhaseConverting,
				Percent: ConversionRunningPercent,
				Message: ConversionRunningMessage,
			})
		},
	}

	out, runErr := x.engine.Run(ctx, req, hooks)
	if runErr != nil {
		return nil, classify(req.URL, runErr)
	}
	if out.Title == "" {
		return nil, classify(req.URL, errors.New("engine reported no title"))
	}

	emit(model.Progress{Status: PhaseComplete, Title: out.Title})

	return &Result{
		Title:    out.Title,
		Filename: model.AudioFilename(out.Title, req.Format),
	}, nil
}

// transferProgress converts a byte-level report to a downloading event
func transferProgress(u TransferUpdate) model.Progress {
	p := model.Progress{
		Status:  PhaseDownloading,
		Percent: "0%",
		Speed:   UnknownValue,
		ETA:     UnknownValue,
	}

	if u.TotalBytes > 0 {
		percent := float64(u.DownloadedBytes) / float64(u.TotalBytes) * 100
		p.Percent = fmt.Sprintf("%.1f%%", percent)
	}
	if u.BytesPerSecond > 0 {
		p.Speed = humanize.Bytes(uint64(u.BytesPerSecond)) + "/s"
	}
	if u.ETA > 0 {
		p.ETA = model.FormatETA(u.ETA)
	}
	return p
}
