package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ytget/yt-audio/internal/config"
	"github.com/ytget/yt-audio/internal/download"
	"github.com/ytget/yt-audio/internal/jobs"
	"github.com/ytget/yt-audio/internal/logging"
	"github.com/ytget/yt-audio/internal/notify"
	"github.com/ytget/yt-audio/internal/platform"
	"github.com/ytget/yt-audio/internal/server"
	"github.com/ytget/yt-audio/internal/storage"
	"github.com/ytget/yt-audio/internal/store"
	"github.com/ytget/yt-audio/internal/worker"
)

// Version is set during build via -ldflags "-X main.version=X.Y.Z"
var version = "dev"

func main() {
	settings, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(settings.LogLevel, settings.LogFormat, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, settings, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, settings *config.Settings, logger *slog.Logger) error {
	logger.Info("yt-audio starting", "version", version)

	if settings.AutoInstall {
		logger.Info("installing yt-dlp")
		if err := download.Install(ctx); err != nil {
			return err
		}
	}

	outputDir, err := settings.GetDownloadDirectory()
	if err != nil {
		return err
	}
	logger.Info("audio output directory", "dir", outputDir)

	st := store.New()

	engine := download.NewYTDLPEngine(
		download.WithMP3Quality(settings.MP3Quality),
		download.WithProgressInterval(settings.ProgressInterval),
	)
	extractor := download.NewExtractor(engine)

	workerOpts := []worker.Option{worker.WithLogger(logger)}
	if settings.MinioEnabled() {
		uploader, err := storage.NewUploader(storage.Config{
			Endpoint:  settings.Minio.Endpoint,
			AccessKey: settings.Minio.AccessKey,
			SecretKey: settings.Minio.SecretKey,
			UseSSL:    settings.Minio.UseSSL,
			Region:    settings.Minio.Region,
			Bucket:    settings.Minio.Bucket,
			Prefix:    settings.Minio.Prefix,
		}, logger)
		if err != nil {
			return err
		}
		if err := uploader.EnsureBucket(ctx); err != nil {
			return err
		}
		workerOpts = append(workerOpts, worker.WithUploader(uploader))
		logger.Info("mirroring audio files to object storage", "endpoint", settings.Minio.Endpoint, "bucket", settings.Minio.Bucket)
	}
	dispatcher := worker.New(st, extractor, outputDir, settings.Workers, workerOpts...)

	hub := notify.NewHub(st.All, logger)
	st.Subscribe(hub)
	go hub.Run(ctx)

	if settings.RedisEnabled() {
		client, err := notify.NewRedisClient(ctx, settings.Redis.Addr, settings.Redis.Password, settings.Redis.DB)
		if err != nil {
			return err
		}
		defer client.Close()

		publisher := notify.NewRedisPublisher(client,
			notify.WithChannel(settings.Redis.Channel),
			notify.WithRedisLogger(logger),
		)
		st.Subscribe(publisher)
		go publisher.Run(ctx)
		logger.Info("publishing job updates to redis", "addr", settings.Redis.Addr, "channel", publisher.Channel())
	}

	playlists := platform.NewPlaylistExpander()
	playlists.SetTimeout(settings.PlaylistTimeout)

	svc := jobs.NewService(st, dispatcher,
		jobs.WithPlaylistExpander(playlists),
		jobs.WithLogger(logger),
	)

	srv := server.New(settings.HTTPAddr, svc,
		server.WithLogger(logger),
		server.WithCORSOrigins(settings.CORSOrigins),
		server.WithBatchWorkers(settings.BatchWorkers),
		server.WithStream(hub),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", settings.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
		logger.Warn("downloads still running at shutdown", "active", dispatcher.Active())
	}
	return errors.Join(errs...)
}
