package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/ytget/yt-audio/internal/download"
	"github.com/ytget/yt-audio/internal/model"
	"github.com/ytget/yt-audio/internal/store"
	"github.com/ytget/yt-audio/internal/worker"
)

var (
	// ErrInvalidURL is returned for anything that is not an absolute http(s) URL with a host.
	ErrInvalidURL = errors.New("invalid url")

	// ErrUnsupportedFormat is returned for formats other than mp3 and wav.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrEmptyBatch is returned when a batch carries no URLs.
	ErrEmptyBatch = errors.New("no urls provided")

	// ErrPlaylistUnavailable is returned when a playlist cannot be expanded.
	ErrPlaylistUnavailable = errors.New("playlist unavailable")

	// ErrUnavailable is returned once the dispatcher stopped accepting jobs.
	ErrUnavailable = errors.New("service is shutting down")
)

// PlaylistExpander resolves a playlist URL to its entries.
type PlaylistExpander interface {
	Expand(ctx context.Context, playlistURL string) (*model.Playlist, error)
}

// Option configures a Service.
type Option func(*Service)

// WithPlaylistExpander enables CreatePlaylistBatch
func WithPlaylistExpander(p PlaylistExpander) Option {
	return func(s *Service) {
		s.playlists = p
	}
}

// WithIDGenerator replaces the uuid generator
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithLogger sets the service logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service accepts download requests, records them and hands them to the dispatcher.
type Service struct {
	store      *store.Store
	dispatcher *worker.Dispatcher
	playlists  PlaylistExpander
	newID      func() string
	logger     *slog.Logger
}

// NewService creates a request service on top of st and d
func NewService(st *store.Store, d *worker.Dispatcher, opts ...Option) *Service {
	s := &Service{
		store:      st,
		dispatcher: d,
		newID:      uuid.NewString,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates one request, records a queued job and schedules it.
// The returned snapshot is always queued.
func (s *Service) Create(rawURL string, format model.Format) (model.Job, error) {
	u, f, err := validate(rawURL, format)
	if err != nil {
		return model.Job{}, err
	}
	if s.dispatcher.Closed() {
		return model.Job{}, ErrUnavailable
	}
	return s.enqueue(u, f), nil
}

// CreateBatch validates every URL before creating any job, then records and
// schedules them in order. maxWorkers > 0 caps how many jobs of this batch
// run at once.
func (s *Service) CreateBatch(urls []string, format model.Format, maxWorkers int) (model.Batch, error) {
	if len(urls) == 0 {
		return model.Batch{}, ErrEmptyBatch
	}

	f, err := ValidateFormat(format)
	if err != nil {
		return model.Batch{}, err
	}

	cleaned := make([]string, 0, len(urls))
	for i, raw := range urls {
		u, err := ValidateURL(raw)
		if err != nil {
			return model.Batch{}, fmt.Errorf("urls[%d]: %w", i, err)
		}
		cleaned = append(cleaned, u)
	}
	if s.dispatcher.Closed() {
		return model.Batch{}, ErrUnavailable
	}

	var opts []worker.SubmitOption
	if maxWorkers > 0 {
		opts = append(opts, worker.WithLimiter(worker.NewLimiter(maxWorkers)))
	}

	batch := model.Batch{
		BatchID:     s.newID(),
		DownloadIDs: make([]string, 0, len(cleaned)),
		Total:       len(cleaned),
	}
	for _, u := range cleaned {
		job := s.enqueue(u, f, opts...)
		batch.DownloadIDs = append(batch.DownloadIDs, job.ID)
	}

	s.logger.Info("batch accepted", "batch_id", batch.BatchID, "total", batch.Total, "format", f, "max_workers", maxWorkers)
	return batch, nil
}

// CreatePlaylistBatch expands a playlist and submits its entries as one batch.
func (s *Service) CreatePlaylistBatch(ctx context.Context, playlistURL string, format model.Format, maxWorkers int) (model.Batch, error) {
	u, err := ValidateURL(playlistURL)
	if err != nil {
		return model.Batch{}, err
	}
	if _, err := ValidateFormat(format); err != nil {
		return model.Batch{}, err
	}
	if s.playlists == nil {
		return model.Batch{}, fmt.Errorf("%w: playlist expansion is not configured", ErrPlaylistUnavailable)
	}
	if s.dispatcher.Closed() {
		return model.Batch{}, ErrUnavailable
	}

	playlist, err := s.playlists.Expand(ctx, u)
	if err != nil {
		return model.Batch{}, fmt.Errorf("%w: %v", ErrPlaylistUnavailable, err)
	}

	urls := playlist.URLs()
	if len(urls) == 0 {
		return model.Batch{}, fmt.Errorf("%w: playlist %s has no entries", ErrEmptyBatch, playlist.ID)
	}
	return s.CreateBatch(urls, format, maxWorkers)
}

// List returns every job in submission order.
func (s *Service) List() []model.Job {
	return s.store.All()
}

// Get returns a single job.
func (s *Service) Get(id string) (model.Job, error) {
	job, ok := s.store.Get(id)
	if !ok {
		return model.Job{}, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return job, nil
}

// enqueue records a queued job and hands it to the dispatcher.
func (s *Service) enqueue(u string, f model.Format, opts ...worker.SubmitOption) model.Job {
	job := model.NewJob(s.newID(), u, f)
	if err := s.store.Create(job); err != nil {
		// ids are random uuids; a collision means the generator is broken
		panic(fmt.Sprintf("create job: %v", err))
	}
	snapshot := job.Clone()

	if err := s.dispatcher.Submit(snapshot, opts...); err != nil {
		// Shutdown raced with the Closed check; a queued job may only fail
		// after it was picked up.
		s.logger.Warn("job rejected", "job_id", job.ID, "error", err)
		for _, mut := range []store.Mutation{
			{Status: model.StatusProcessing},
			{Status: model.StatusFailed, Error: download.UnexpectedErrorPrefix + err.Error()},
		} {
			if _, upErr := s.store.Update(job.ID, mut); upErr != nil {
				s.logger.Error("failed to record rejected job", "job_id", job.ID, "error", upErr)
				break
			}
		}
		return snapshot
	}

	s.logger.Debug("job accepted", "job_id", job.ID, "url", u, "format", f)
	return snapshot
}

func validate(rawURL string, format model.Format) (string, model.Format, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return "", "", err
	}
	f, err := ValidateFormat(format)
	if err != nil {
		return "", "", err
	}
	return u, f, nil
}

// ValidateURL trims raw and checks it is an absolute http or https URL with a host.
func ValidateURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: url is required", ErrInvalidURL)
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, trimmed)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("%w: %q must use http or https", ErrInvalidURL, trimmed)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidURL, trimmed)
	}
	return trimmed, nil
}

// ValidateFormat returns the default format for an empty value and rejects
// anything that is not mp3 or wav.
func ValidateFormat(format model.Format) (model.Format, error) {
	if format == "" {
		return model.DefaultFormat, nil
	}
	f := model.Format(strings.ToLower(strings.TrimSpace(string(format))))
	if !f.IsValid() {
		return "", fmt.Errorf("%w: %q (expected one of %v)", ErrUnsupportedFormat, format, model.Formats())
	}
	return f, nil
}
