package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/yt-audio/internal/download"
	"github.com/ytget/yt-audio/internal/model"
	"github.com/ytget/yt-audio/internal/store"
)

// fakeDownloader blocks every call until release is closed and tracks the
// peak number of concurrent calls.
type fakeDownloader struct {
	release chan struct{}
	extract func(req download.Request, sink download.ProgressSink) (*download.Result, error)

	running atomic.Int64
	peak    atomic.Int64
	calls   atomic.Int64
}

func (f *fakeDownloader) Extract(ctx context.Context, req download.Request, sink download.ProgressSink) (*download.Result, error) {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	f.calls.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if f.release != nil {
		<-f.release
	}
	if f.extract != nil {
		return f.extract(req, sink)
	}
	return &download.Result{Title: "Song Title", Filename: model.AudioFilename("Song Title", req.Format)}, nil
}

func addJob(t *testing.T, st *store.Store, id, url string, format model.Format) model.Job {
	t.Helper()
	job := model.NewJob(id, url, format)
	require.NoError(t, st.Create(job))
	return job.Clone()
}

func TestClampWorkers(t *testing.T) {
	assert.Equal(t, MinWorkers, ClampWorkers(0))
	assert.Equal(t, MinWorkers, ClampWorkers(-3))
	assert.Equal(t, 7, ClampWorkers(7))
	assert.Equal(t, MaxWorkers, ClampWorkers(100))
}

func TestDispatcherCompletesJob(t *testing.T) {
	st := store.New()
	d := New(st, &fakeDownloader{}, "/tmp/out", 2)

	job := addJob(t, st, "a", "https://example.com/v1", model.FormatWAV)
	require.NoError(t, d.Submit(job))
	d.Wait()

	got, ok := st.Get("a")
	require.True(t, ok)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, "Song Title", got.Title)
	assert.Equal(t, "Song Title.wav", got.Filename)
	assert.Empty(t, got.Error)
}

func TestDispatcherBoundsConcurrency(t *testing.T) {
	const workers = 3
	const jobs = 10

	st := store.New()
	fake := &fakeDownloader{release: make(chan struct{})}
	d := New(st, fake, t.TempDir(), workers)

	for i := 0; i < jobs; i++ {
		job := addJob(t, st, fmt.Sprintf("job-%d", i), "https://example.com/v", model.FormatMP3)
		require.NoError(t, d.Submit(job))
	}

	require.Eventually(t, func() bool {
		return fake.running.Load() == workers
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, workers, d.Active())

	queued := 0
	for _, j := range st.All() {
		if j.Status == model.StatusQueued {
			queued++
		}
	}
	assert.Equal(t, jobs-workers, queued)

	close(fake.release)
	d.Wait()

	assert.LessOrEqual(t, fake.peak.Load(), int64(workers))
	assert.Equal(t, int64(jobs), fake.calls.Load())
	assert.Equal(t, 0, d.Active())
	for _, j := range st.All() {
		assert.Equal(t, model.StatusCompleted, j.Status)
	}
}

func TestDispatcherLimiterBoundsGroup(t *testing.T) {
	st := store.New()
	fake := &fakeDownloader{release: make(chan struct{})}
	d := New(st, fake, t.TempDir(), 8)
	limiter := NewLimiter(2)

	for i := 0; i < 6; i++ {
		job := addJob(t, st, fmt.Sprintf("job-%d", i), "https://example.com/v", model.FormatMP3)
		require.NoError(t, d.Submit(job, WithLimiter(limiter)))
	}

	require.Eventually(t, func() bool {
		return fake.running.Load() == 2
	}, 2*time.Second, 5*time.Millisecond)

	close(fake.release)
	d.Wait()
	assert.LessOrEqual(t, fake.peak.Load(), int64(2))
}

func TestDispatcherSetsProcessingBeforeExtract(t *testing.T) {
	st := store.New()
	var seen model.JobStatus
	fake := &fakeDownloader{
		extract: func(req download.Request, sink download.ProgressSink) (*download.Result, error) {
			j, _ := st.Get("a")
			seen = j.Status
			return &download.Result{Title: "t", Filename: "t.mp3"}, nil
		},
	}
	d := New(st, fake, t.TempDir(), 1)

	require.NoError(t, d.Submit(addJob(t, st, "a", "u", model.FormatMP3)))
	d.Wait()

	assert.Equal(t, model.StatusProcessing, seen)
}

func TestDispatcherMirrorsProgress(t *testing.T) {
	st := store.New()

	var mu sync.Mutex
	var statuses []model.JobStatus
	st.Subscribe(store.ObserverFunc(func(j model.Job) {
		mu.Lock()
		defer mu.Unlock()
		statuses = append(statuses, j.Status)
	}))

	fake := &fakeDownloader{
		extract: func(req download.Request, sink download.ProgressSink) (*download.Result, error) {
			sink.OnProgress(model.Progress{Status: download.PhaseExtracting})
			sink.OnProgress(model.Progress{Status: download.PhaseDownloading, Percent: "50.0%"})
			sink.OnProgress(model.Progress{Status: download.PhaseConverting, Percent: "10%"})
			sink.OnProgress(model.Progress{Status: download.PhaseComplete, Title: "t"})
			return &download.Result{Title: "t", Filename: "t.mp3"}, nil
		},
	}
	d := New(st, fake, t.TempDir(), 1)

	require.NoError(t, d.Submit(addJob(t, st, "a", "u", model.FormatMP3)))
	d.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []model.JobStatus{
		model.StatusQueued,
		model.StatusProcessing,
		model.StatusExtracting,
		model.StatusDownloading,
		model.StatusConverting,
		model.StatusConverting,
		model.StatusCompleted,
	}, statuses)

	got, _ := st.Get("a")
	require.NotNil(t, got.Progress)
	assert.Equal(t, download.PhaseComplete, got.Progress.Status)
}

func TestDispatcherIsolatesFailures(t *testing.T) {
	st := store.New()
	fake := &fakeDownloader{
		extract: func(req download.Request, sink download.ProgressSink) (*download.Result, error) {
			switch req.URL {
			case "bad":
				return nil, &download.Error{Kind: download.KindDownload, Message: "Download error: HTTP Error 403", URL: req.URL}
			case "boom":
				panic("engine crashed")
			}
			return &download.Result{Title: "ok", Filename: "ok.mp3"}, nil
		},
	}
	d := New(st, fake, t.TempDir(), 2)

	require.NoError(t, d.Submit(addJob(t, st, "1", "bad", model.FormatMP3)))
	require.NoError(t, d.Submit(addJob(t, st, "2", "boom", model.FormatMP3)))
	require.NoError(t, d.Submit(addJob(t, st, "3", "good", model.FormatMP3)))
	d.Wait()

	bad, _ := st.Get("1")
	assert.Equal(t, model.StatusFailed, bad.Status)
	assert.Equal(t, "Download error: HTTP Error 403", bad.Error)

	boom, _ := st.Get("2")
	assert.Equal(t, model.StatusFailed, boom.Status)
	assert.Equal(t, "Unexpected error: engine crashed", boom.Error)

	good, _ := st.Get("3")
	assert.Equal(t, model.StatusCompleted, good.Status)
	assert.Equal(t, "ok.mp3", good.Filename)
}

type fakeUploader struct {
	err   error
	paths []string
	mu    sync.Mutex
}

func (f *fakeUploader) Upload(ctx context.Context, jobID, dir, filename string) (string, error) {
	f.mu.Lock()
	f.paths = append(f.paths, filepath.Join(dir, filename))
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return "audio/" + jobID + "/file", nil
}

func TestDispatcherUploadsCompletedFiles(t *testing.T) {
	st := store.New()
	up := &fakeUploader{}
	d := New(st, &fakeDownloader{}, "/srv/audio", 1, WithUploader(up))

	require.NoError(t, d.Submit(addJob(t, st, "a", "u", model.FormatMP3)))
	d.Wait()

	got, _ := st.Get("a")
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, "audio/a/file", got.ObjectKey)
	assert.Equal(t, []string{"/srv/audio/Song Title.mp3"}, up.paths)
}

func TestDispatcherUploadFailureKeepsCompletion(t *testing.T) {
	st := store.New()
	d := New(st, &fakeDownloader{}, t.TempDir(), 1, WithUploader(&fakeUploader{err: errors.New("bucket missing")}))

	require.NoError(t, d.Submit(addJob(t, st, "a", "u", model.FormatMP3)))
	d.Wait()

	got, _ := st.Get("a")
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Empty(t, got.ObjectKey)
}

func TestDispatcherShutdown(t *testing.T) {
	st := store.New()
	fake := &fakeDownloader{release: make(chan struct{})}
	d := New(st, fake, t.TempDir(), 1)

	require.NoError(t, d.Submit(addJob(t, st, "a", "u", model.FormatMP3)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Shutdown(ctx), context.DeadlineExceeded)

	assert.ErrorIs(t, d.Submit(addJob(t, st, "b", "u", model.FormatMP3)), ErrClosed)

	close(fake.release)
	require.NoError(t, d.Shutdown(context.Background()))

	got, _ := st.Get("a")
	assert.Equal(t, model.StatusCompleted, got.Status)
}
