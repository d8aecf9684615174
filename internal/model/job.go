package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Format is the requested output audio format
type Format string

const (
	FormatMP3 Format = "mp3"
	FormatWAV Format = "wav"
)

// DefaultFormat is used when a request omits the format
const DefaultFormat = FormatMP3

// Formats returns the supported output formats
func Formats() []Format {
	return []Format{FormatMP3, FormatWAV}
}

// IsValid reports whether f is a supported format
func (f Format) IsValid() bool {
	return f == FormatMP3 || f == FormatWAV
}

// String returns the string representation of Format
func (f Format) String() string {
	return string(f)
}

// Progress is the latest structured snapshot reported while a job runs.
// Only the most recent snapshot is kept on the job.
type Progress struct {
	Status  string `json:"status,omitempty"`
	Percent string `json:"percent,omitempty"`
	Speed   string `json:"speed,omitempty"`
	ETA     string `json:"eta,omitempty"`
	Message string `json:"message,omitempty"`
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Job is the tracked state of one requested URL-to-audio conversion
type Job struct {
	ID        string    `json:"id"`
	Status    JobStatus `json:"status"`
	URL       string    `json:"url"`
	Format    Format    `json:"format"`
	Title     string    `json:"title"`
	Filename  string    `json:"filename"`
	Error     string    `json:"error"`
	Progress  *Progress `json:"progress"`
	ObjectKey string    `json:"object_key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewJob creates a queued job for url
func NewJob(id, url string, format Format) *Job {
	now := time.Now()
	return &Job{
		ID:        id,
		Status:    StatusQueued,
		URL:       url,
		Format:    format,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy that shares no memory with j
func (j *Job) Clone() Job {
	c := *j
	if j.Progress != nil {
		p := *j.Progress
		c.Progress = &p
	}
	return c
}

// MarshalJSON writes title, filename and error as null until they are set.
func (j Job) MarshalJSON() ([]byte, error) {
	type plain Job
	return json.Marshal(struct {
		plain
		Title    *string `json:"title"`
		Filename *string `json:"filename"`
		Error    *string `json:"error"`
	}{
		plain:    plain(j),
		Title:    nullable(j.Title),
		Filename: nullable(j.Filename),
		Error:    nullable(j.Error),
	})
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Succeeded reports whether the job completed with a result
func (j *Job) Succeeded() bool {
	return j.Status == StatusCompleted
}

// GetDisplayTitle returns title, filename, or URL in order of preference
func (j *Job) GetDisplayTitle() string {
	if j.Title != "" && !strings.HasPrefix(j.Title, "http") {
		return j.Title
	}

	if j.Filename != "" {
		name := j.Filename
		if idx := strings.LastIndex(name, "."); idx > 0 {
			name = name[:idx]
		}
		return name
	}

	return j.URL
}

// Batch is the ephemeral grouping returned when several jobs are submitted together
type Batch struct {
	BatchID     string   `json:"batch_id"`
	DownloadIDs []string `json:"download_ids"`
	Total       int      `json:"total"`
}

// AudioFilename builds the file name the engine produces for title
func AudioFilename(title string, format Format) string {
	return fmt.Sprintf("%s.%s", title, format)
}

// FormatETA returns d formatted as hh:mm:ss or mm:ss, or "N/A" if unknown
func FormatETA(d time.Duration) string {
	secs := int(d.Seconds())
	if secs <= 0 {
		return "N/A"
	}

	hours := secs / 3600
	minutes := (secs % 3600) / 60
	seconds := secs % 60

	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
