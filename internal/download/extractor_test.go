package download

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/yt-audio/internal/model"
)

// fakeEngine replays scripted hook calls and then returns a fixed outcome.
type fakeEngine struct {
	script func(h Hooks)
	result EngineResult
	err    error
	panics any
	seen   Request
}

func (f *fakeEngine) Run(ctx context.Context, req Request, h Hooks) (EngineResult, error) {
	f.seen = req
	if f.script != nil {
		f.script(h)
	}
	if f.panics != nil {
		panic(f.panics)
	}
	return f.result, f.err
}

type recordingSink struct {
	events []model.Progress
}

func (r *recordingSink) OnProgress(p model.Progress) {
	r.events = append(r.events, p)
}

func (r *recordingSink) statuses() []string {
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Status)
	}
	return out
}

func TestExtractSuccessEmitsPhasesInOrder(t *testing.T) {
	engine := &fakeEngine{
		script: func(h Hooks) {
			h.OnTransfer(TransferUpdate{DownloadedBytes: 25, TotalBytes: 100, BytesPerSecond: 2 * 1000 * 1000, ETA: 90 * time.Second})
			h.OnTransfer(TransferUpdate{DownloadedBytes: 100, TotalBytes: 100})
			h.OnTransferDone()
			h.OnPostProcess()
		},
		result: EngineResult{Title: "Song Title"},
	}
	sink := &recordingSink{}

	res, err := NewExtractor(engine).Extract(context.Background(), Request{
		URL:       "https://example.com/v1",
		OutputDir: "/tmp/out",
		Format:    model.FormatWAV,
	}, sink)

	require.NoError(t, err)
	assert.Equal(t, "Song Title", res.Title)
	assert.Equal(t, "Song Title.wav", res.Filename)
	assert.Equal(t, "/tmp/out", engine.seen.OutputDir)

	assert.Equal(t, []string{
		PhaseExtracting,
		PhaseDownloading,
		PhaseDownloading,
		PhaseConverting,
		PhaseConverting,
		PhaseComplete,
	}, sink.statuses())

	assert.Equal(t, "https://example.com/v1", sink.events[0].URL)
	assert.Equal(t, model.Progress{Status: PhaseDownloading, Percent: "25.0%", Speed: "2.0 MB/s", ETA: "01:30"}, sink.events[1])
	assert.Equal(t, model.Progress{Status: PhaseDownloading, Percent: "100.0%", Speed: UnknownValue, ETA: UnknownValue}, sink.events[2])
	assert.Equal(t, ConversionStartPercent, sink.events[3].Percent)
	assert.Equal(t, ConversionStartMessage, sink.events[3].Message)
	assert.Equal(t, ConversionRunningPercent, sink.events[4].Percent)
	assert.Equal(t, ConversionRunningMessage, sink.events[4].Message)
	assert.Equal(t, "Song Title", sink.events[5].Title)
}

func TestExtractIgnoresPostProcessBeforeTransferDone(t *testing.T) {
	engine := &fakeEngine{
		script: func(h Hooks) {
			h.OnPostProcess()
		},
		result: EngineResult{Title: "t"},
	}
	sink := &recordingSink{}

	_, err := NewExtractor(engine).Extract(context.Background(), Request{URL: "u", Format: model.FormatMP3}, sink)
	require.NoError(t, err)
	assert.Equal(t, []string{PhaseExtracting, PhaseComplete}, sink.statuses())
}

func TestExtractWithoutSink(t *testing.T) {
	engine := &fakeEngine{
		script: func(h Hooks) {
			h.OnTransfer(TransferUpdate{})
			h.OnTransferDone()
		},
		result: EngineResult{Title: "t"},
	}

	res, err := NewExtractor(engine).Extract(context.Background(), Request{URL: "u", Format: model.FormatMP3}, nil)
	require.NoError(t, err)
	assert.Equal(t, "t.mp3", res.Filename)
}

func TestExtractClassifiesFailures(t *testing.T) {
	tests := []struct {
		name       string
		engine     *fakeEngine
		wantKind   Kind
		wantPrefix string
	}{
		{
			name:       "download failure",
			engine:     &fakeEngine{err: DownloadFailure("ERROR: unable to download video data: HTTP Error 403")},
			wantKind:   KindDownload,
			wantPrefix: DownloadErrorPrefix,
		},
		{
			name:       "extraction failure",
			engine:     &fakeEngine{err: ExtractionFailure("ERROR: [youtube] abc: Video unavailable")},
			wantKind:   KindExtraction,
			wantPrefix: ExtractorErrorPrefix,
		},
		{
			name:       "unclassified failure",
			engine:     &fakeEngine{err: errors.New("exit status 2")},
			wantKind:   KindUnexpected,
			wantPrefix: UnexpectedErrorPrefix,
		},
		{
			name:       "engine panic",
			engine:     &fakeEngine{panics: "nil map write"},
			wantKind:   KindUnexpected,
			wantPrefix: UnexpectedErrorPrefix,
		},
		{
			name:       "missing title",
			engine:     &fakeEngine{result: EngineResult{}},
			wantKind:   KindUnexpected,
			wantPrefix: UnexpectedErrorPrefix,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewExtractor(tt.engine).Extract(context.Background(), Request{URL: "https://example.com/v1", Format: model.FormatMP3}, &recordingSink{})
			assert.Nil(t, res)

			var extractErr *Error
			require.ErrorAs(t, err, &extractErr)
			assert.Equal(t, tt.wantKind, extractErr.Kind)
			assert.Equal(t, "https://example.com/v1", extractErr.URL)
			assert.Contains(t, extractErr.Error(), tt.wantPrefix)
		})
	}
}

func TestExtractionErrorMessageKeepsEngineDetail(t *testing.T) {
	engine := &fakeEngine{err: ExtractionFailure("ERROR: [youtube] abc: Video unavailable")}

	_, err := NewExtractor(engine).Extract(context.Background(), Request{URL: "u"}, nil)
	require.Error(t, err)
	assert.Equal(t, "Extractor error: ERROR: [youtube] abc: Video unavailable", err.Error())
	assert.ErrorIs(t, err, ErrEngineExtraction)
}
