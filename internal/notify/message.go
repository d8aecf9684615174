package notify

import (
	"encoding/json"

	"github.com/ytget/yt-audio/internal/model"
)

// Message types
const (
	TypeInitialJobs = "initial_jobs"
	TypeJobUpdate   = "job_update"
)

// Message is the envelope sent to websocket clients and redis subscribers.
type Message struct {
	Type string      `json:"type"`
	Job  *model.Job  `json:"job,omitempty"`
	Jobs []model.Job `json:"jobs,omitempty"`
}

func encodeUpdate(job model.Job) ([]byte, error) {
	return json.Marshal(Message{Type: TypeJobUpdate, Job: &job})
}

func encodeInitial(jobs []model.Job) ([]byte, error) {
	if jobs == nil {
		jobs = []model.Job{}
	}
	return json.Marshal(struct {
		Type string      `json:"type"`
		Jobs []model.Job `json:"jobs"`
	}{Type: TypeInitialJobs, Jobs: jobs})
}
