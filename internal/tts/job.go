package tts

import (
	"encoding/json"
	"strings"
)

// Status is the lifecycle state of a remote job.
type Status string

// Job states. TimedOut is normally declared by the client when the poll
// ceiling is reached, though the service may also report it.
const (
	StatusQueued     Status = "QUEUED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
	StatusTimedOut   Status = "TIMED_OUT"
)

// parseStatus normalizes the service's status strings. Unknown values are
// treated as still in progress so polling continues.
func parseStatus(raw string) Status {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "IN_QUEUE", "QUEUED":
		return StatusQueued
	case "IN_PROGRESS", "RUNNING":
		return StatusInProgress
	case "COMPLETED":
		return StatusCompleted
	case "FAILED":
		return StatusFailed
	case "CANCELLED", "CANCELED":
		return StatusCancelled
	case "TIMED_OUT":
		return StatusTimedOut
	default:
		return StatusInProgress
	}
}

// Terminal reports whether polling must stop in this state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	case StatusQueued, StatusInProgress:
		return false
	default:
		return false
	}
}

// Job is a snapshot of a unit of work on the inference service.
type Job struct {
	ID     string          `json:"id"`
	Status Status          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
	// Attempts counts the status calls made while polling this job.
	Attempts int `json:"attempts"`
}

// jobResponse is the wire form shared by the run and status endpoints.
type jobResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
}

func (r jobResponse) job() *Job {
	output := r.Output
	if isJSONNull(output) {
		output = nil
	}

	return &Job{
		ID:     r.ID,
		Status: parseStatus(r.Status),
		Output: output,
		Error:  errorText(r.Error),
	}
}

func isJSONNull(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))

	return trimmed == "" || trimmed == "null"
}

// errorText accepts the error field either as a string or as an arbitrary
// JSON value.
func errorText(raw json.RawMessage) string {
	if isJSONNull(raw) {
		return ""
	}

	var text string
	if json.Unmarshal(raw, &text) == nil {
		return text
	}

	return string(raw)
}
