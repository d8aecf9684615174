package model

import "testing"

func TestJobStatus_IsActive(t *testing.T) {
	tests := []struct {
		status   JobStatus
		expected bool
	}{
		{StatusQueued, false},
		{StatusProcessing, true},
		{StatusDownloading, true},
		{StatusExtracting, true},
		{StatusConverting, true},
		{StatusCompleted, false},
		{StatusFailed, false},
	}

	for _, test := range tests {
		result := test.status.IsActive()
		if result != test.expected {
			t.Errorf("JobStatus(%s).IsActive() = %v, expected %v", test.status, result, test.expected)
		}
	}
}

func TestJobStatus_IsFinished(t *testing.T) {
	tests := []struct {
		status   JobStatus
		expected bool
	}{
		{StatusQueued, false},
		{StatusProcessing, false},
		{StatusDownloading, false},
		{StatusExtracting, false},
		{StatusConverting, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}

	for _, test := range tests {
		result := test.status.IsFinished()
		if result != test.expected {
			t.Errorf("JobStatus(%s).IsFinished() = %v, expected %v", test.status, result, test.expected)
		}
	}
}

func TestJobStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from     JobStatus
		to       JobStatus
		expected bool
	}{
		{StatusQueued, StatusProcessing, true},
		{StatusQueued, StatusDownloading, false},
		{StatusQueued, StatusCompleted, false},
		{StatusQueued, StatusFailed, false},
		{StatusProcessing, StatusExtracting, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusQueued, false},
		{StatusProcessing, StatusProcessing, false},
		{StatusExtracting, StatusDownloading, true},
		{StatusDownloading, StatusDownloading, true},
		{StatusConverting, StatusExtracting, true},
		{StatusConverting, StatusCompleted, true},
		{StatusDownloading, StatusProcessing, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusCompleted, false},
		{StatusCompleted, StatusDownloading, false},
		{StatusQueued, JobStatus("paused"), false},
		{JobStatus("paused"), StatusProcessing, false},
	}

	for _, test := range tests {
		result := test.from.CanTransition(test.to)
		if result != test.expected {
			t.Errorf("JobStatus(%s).CanTransition(%s) = %v, expected %v", test.from, test.to, result, test.expected)
		}
	}
}

func TestJobStatus_String(t *testing.T) {
	status := StatusDownloading
	expected := "downloading"
	result := status.String()

	if result != expected {
		t.Errorf("JobStatus.String() = %s, expected %s", result, expected)
	}
}
