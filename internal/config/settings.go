package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/ytget/yt-audio/internal/platform"
)

// Default values
const (
	DefaultHTTPAddr         = ":8000"
	DefaultWorkers          = 5
	DefaultBatchWorkers     = 3
	DefaultMP3Quality       = "192"
	DefaultProgressInterval = 250 * time.Millisecond
	DefaultShutdownTimeout  = 30 * time.Second
	DefaultPlaylistTimeout  = 60 * time.Second
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
)

// Worker bounds
const (
	MinWorkers = 1
	MaxWorkers = 32
)

// RedisSettings configures the optional redis job fan-out.
type RedisSettings struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	Channel  string `env:"CHANNEL" envDefault:"yt-audio:jobs"`
}

// MinioSettings configures the optional object storage mirror.
type MinioSettings struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
	Region    string `env:"REGION"`
	Bucket    string `env:"BUCKET" envDefault:"yt-audio"`
	Prefix    string `env:"PREFIX" envDefault:"audio"`
}

// Settings is the process configuration, read from the environment.
type Settings struct {
	HTTPAddr         string        `env:"YTAUDIO_HTTP_ADDR" envDefault:":8000"`
	OutputDir        string        `env:"YTAUDIO_OUTPUT_DIR"`
	Workers          int           `env:"YTAUDIO_WORKERS" envDefault:"5"`
	BatchWorkers     int           `env:"YTAUDIO_BATCH_WORKERS" envDefault:"3"`
	MP3Quality       string        `env:"YTAUDIO_MP3_QUALITY" envDefault:"192"`
	ProgressInterval time.Duration `env:"YTAUDIO_PROGRESS_INTERVAL" envDefault:"250ms"`
	AutoInstall      bool          `env:"YTAUDIO_AUTO_INSTALL" envDefault:"false"`
	CORSOrigins      []string      `env:"YTAUDIO_CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	ShutdownTimeout  time.Duration `env:"YTAUDIO_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	PlaylistTimeout  time.Duration `env:"YTAUDIO_PLAYLIST_TIMEOUT" envDefault:"60s"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat        string        `env:"LOG_FORMAT" envDefault:"text"`

	Redis RedisSettings `envPrefix:"REDIS_"`
	Minio MinioSettings `envPrefix:"MINIO_"`
}

// Load reads settings from the process environment
func Load() (*Settings, error) {
	return load(env.Options{})
}

// LoadFrom reads settings from the given variables only
func LoadFrom(environment map[string]string) (*Settings, error) {
	return load(env.Options{Environment: environment})
}

func load(opts env.Options) (*Settings, error) {
	var s Settings
	if err := env.ParseWithOptions(&s, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	s.normalize()
	return &s, nil
}

// normalize clamps out-of-range values back to usable ones
func (s *Settings) normalize() {
	s.Workers = clampWorkers(s.Workers, DefaultWorkers)
	s.BatchWorkers = clampWorkers(s.BatchWorkers, DefaultBatchWorkers)

	if strings.TrimSpace(s.HTTPAddr) == "" {
		s.HTTPAddr = DefaultHTTPAddr
	}
	if strings.TrimSpace(s.MP3Quality) == "" {
		s.MP3Quality = DefaultMP3Quality
	}
	if s.ProgressInterval <= 0 {
		s.ProgressInterval = DefaultProgressInterval
	}
	if s.ShutdownTimeout <= 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
	if s.PlaylistTimeout <= 0 {
		s.PlaylistTimeout = DefaultPlaylistTimeout
	}

	origins := s.CORSOrigins[:0]
	for _, o := range s.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	s.CORSOrigins = origins
}

// clampWorkers keeps a worker count within [MinWorkers, MaxWorkers];
// non-positive values fall back to def
func clampWorkers(n, def int) int {
	if n <= 0 {
		return def
	}
	if n > MaxWorkers {
		return MaxWorkers
	}
	return n
}

// GetDownloadDirectory returns the configured output directory, or the first
// writable well-known user directory when none is configured.
func (s *Settings) GetDownloadDirectory() (string, error) {
	return platform.SelectOutputDirectory(s.OutputDir)
}

// RedisEnabled reports whether redis fan-out is configured
func (s *Settings) RedisEnabled() bool {
	return s.Redis.Addr != ""
}

// MinioEnabled reports whether uploads to object storage are configured
func (s *Settings) MinioEnabled() bool {
	return s.Minio.Endpoint != ""
}
