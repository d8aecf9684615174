package model

// JobStatus represents the lifecycle state of a download job
type JobStatus string

const (
	// StatusQueued means the job was accepted but no worker picked it up yet
	StatusQueued JobStatus = "queued"

	// StatusProcessing means a worker slot was assigned and extraction is about to start
	StatusProcessing JobStatus = "processing"

	// StatusDownloading means the engine is transferring media bytes
	StatusDownloading JobStatus = "downloading"

	// StatusExtracting means the engine is resolving the URL to a media stream
	StatusExtracting JobStatus = "extracting"

	// StatusConverting means the engine is transcoding the downloaded media
	StatusConverting JobStatus = "converting"

	// StatusCompleted means the audio file was produced
	StatusCompleted JobStatus = "completed"

	// StatusFailed means the job ended with an error
	StatusFailed JobStatus = "failed"
)

// Ranks used to keep transitions monotonic. All engine phases share one rank.
const (
	rankQueued = iota
	rankProcessing
	rankPhase
	rankTerminal
)

// String returns the string representation of JobStatus
func (s JobStatus) String() string {
	return string(s)
}

// IsValid reports whether s is one of the known statuses
func (s JobStatus) IsValid() bool {
	_, ok := s.rank()
	return ok
}

// IsActive returns true if a worker currently owns the job
func (s JobStatus) IsActive() bool {
	return s == StatusProcessing || s.IsPhase()
}

// IsPhase returns true for the engine-reported phases
func (s JobStatus) IsPhase() bool {
	return s == StatusDownloading || s == StatusExtracting || s == StatusConverting
}

// IsFinished returns true if the job reached a terminal state (completed or failed)
func (s JobStatus) IsFinished() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether the state machine allows moving from s to next.
// Phases may interleave and repeat; terminal states are final.
func (s JobStatus) CanTransition(next JobStatus) bool {
	from, ok := s.rank()
	if !ok {
		return false
	}
	to, ok := next.rank()
	if !ok {
		return false
	}

	switch from {
	case rankQueued:
		return to == rankProcessing
	case rankProcessing:
		return to == rankPhase || to == rankTerminal
	case rankPhase:
		return to == rankPhase || to == rankTerminal
	default:
		return false
	}
}

func (s JobStatus) rank() (int, bool) {
	switch s {
	case StatusQueued:
		return rankQueued, true
	case StatusProcessing:
		return rankProcessing, true
	case StatusDownloading, StatusExtracting, StatusConverting:
		return rankPhase, true
	case StatusCompleted, StatusFailed:
		return rankTerminal, true
	default:
		return 0, false
	}
}
