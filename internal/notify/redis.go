package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ytget/yt-audio/internal/model"
)

// Redis defaults
const (
	DefaultRedisChannel   = "yt-audio:jobs"
	DefaultRedisKeyPrefix = "yt-audio:job:"
	DefaultPublishTimeout = 2 * time.Second
	PublishQueueSize      = 256
)

// NewRedisClient connects to redis and verifies the connection
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// RedisOption configures a RedisPublisher.
type RedisOption func(*RedisPublisher)

// WithChannel sets the pub/sub channel job updates are published on
func WithChannel(channel string) RedisOption {
	return func(p *RedisPublisher) {
		if channel != "" {
			p.channel = channel
		}
	}
}

// WithKeyPrefix sets the prefix of the per-job status hash
func WithKeyPrefix(prefix string) RedisOption {
	return func(p *RedisPublisher) {
		if prefix != "" {
			p.keyPrefix = prefix
		}
	}
}

// WithRedisLogger sets the publisher logger
func WithRedisLogger(logger *slog.Logger) RedisOption {
	return func(p *RedisPublisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// RedisPublisher mirrors job changes to redis: a status hash per job and a
// job_update message on a pub/sub channel. Updates are queued and written by
// Run so the notifying goroutine never waits on the network.
type RedisPublisher struct {
	client    *redis.Client
	channel   string
	keyPrefix string
	timeout   time.Duration
	logger    *slog.Logger
	queue     chan model.Job
}

// NewRedisPublisher creates a publisher on top of client
func NewRedisPublisher(client *redis.Client, opts ...RedisOption) *RedisPublisher {
	p := &RedisPublisher{
		client:    client,
		channel:   DefaultRedisChannel,
		keyPrefix: DefaultRedisKeyPrefix,
		timeout:   DefaultPublishTimeout,
		logger:    slog.Default(),
		queue:     make(chan model.Job, PublishQueueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Channel returns the pub/sub channel name.
func (p *RedisPublisher) Channel() string {
	return p.channel
}

// JobKey returns the hash key holding the status of job id
func (p *RedisPublisher) JobKey(id string) string {
	return p.keyPrefix + id
}

// JobChanged queues job for publishing, dropping it when the queue is full.
func (p *RedisPublisher) JobChanged(job model.Job) {
	select {
	case p.queue <- job:
	default:
		p.logger.Warn("redis publish queue full, dropping update", "job_id", job.ID, "status", job.Status)
	}
}

// Run writes queued updates until ctx is done, then flushes what is left.
func (p *RedisPublisher) Run(ctx context.Context) {
	for {
		select {
		case job := <-p.queue:
			p.write(job)
		case <-ctx.Done():
			for {
				select {
				case job := <-p.queue:
					p.write(job)
				default:
					return
				}
			}
		}
	}
}

func (p *RedisPublisher) write(job model.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.Publish(ctx, job); err != nil {
		p.logger.Warn("failed to publish job update", "job_id", job.ID, "error", err)
	}
}

// Publish writes the status hash and the job_update message for job.
func (p *RedisPublisher) Publish(ctx context.Context, job model.Job) error {
	payload, err := encodeUpdate(job)
	if err != nil {
		return fmt.Errorf("marshal job update: %w", err)
	}

	fields := map[string]interface{}{
		"status":     string(job.Status),
		"url":        job.URL,
		"format":     string(job.Format),
		"updated_at": job.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if job.Progress != nil && job.Progress.Percent != "" {
		fields["percent"] = job.Progress.Percent
	}
	if job.Title != "" {
		fields["title"] = job.Title
	}
	if job.Filename != "" {
		fields["filename"] = job.Filename
	}
	if job.Error != "" {
		fields["error"] = job.Error
	}
	if job.ObjectKey != "" {
		fields["object_key"] = job.ObjectKey
	}

	pipe := p.client.TxPipeline()
	pipe.HSet(ctx, p.JobKey(job.ID), fields)
	pipe.Publish(ctx, p.channel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis exec: %w", err)
	}
	return nil
}
