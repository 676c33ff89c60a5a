package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SourceType identifies which kind of document a render job belonged to.
type SourceType string

const (
	// SourceTypeCanvas marks jobs submitted from a canvas editor.
	SourceTypeCanvas SourceType = "canvas"
	// SourceTypePrompt marks jobs submitted from a prompt editor.
	SourceTypePrompt SourceType = "prompt"
)

// JobStatus enumerates terminal render-job outcomes carried on the channel.
type JobStatus string

const (
	JobStatusSuccess JobStatus = "success"
	JobStatusFailure JobStatus = "failure"
)

var (
	// ErrMalformedFrame indicates a frame that is not a JSON object.
	ErrMalformedFrame = errors.New("wire: malformed frame")
	// ErrMissingSourceID indicates a job event without a document identifier.
	ErrMissingSourceID = errors.New("wire: source id required")
	// ErrUnknownSourceType indicates a source type outside canvas/prompt.
	ErrUnknownSourceType = errors.New("wire: unknown source type")
	// ErrUnknownStatus indicates a status outside success/failure.
	ErrUnknownStatus = errors.New("wire: unknown job status")
)

// JobEvent is the single inbound message type delivered over the channel.
// The protocol carries no server-assigned event identifier, so consumers
// that need one must mint it locally.
type JobEvent struct {
	Message    string     `json:"message"`
	VideoURL   string     `json:"video_url,omitempty"`
	SourceID   string     `json:"source_id"`
	SourceType SourceType `json:"source_type"`
	Status     JobStatus  `json:"status"`
	Detail     string     `json:"detail,omitempty"`
}

// Validate checks the invariants every job event must satisfy before fan-out.
func (e JobEvent) Validate() error {
	if strings.TrimSpace(e.SourceID) == "" {
		return ErrMissingSourceID
	}
	switch e.SourceType {
	case SourceTypeCanvas, SourceTypePrompt:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSourceType, e.SourceType)
	}
	switch e.Status {
	case JobStatusSuccess, JobStatusFailure:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStatus, e.Status)
	}
	return nil
}

// Failed reports whether the event describes a failed job.
func (e JobEvent) Failed() bool {
	return e.Status == JobStatusFailure
}

// DecodeJobEvent parses and validates one inbound text frame.
func DecodeJobEvent(data []byte) (JobEvent, error) {
	var event JobEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return JobEvent{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if err := event.Validate(); err != nil {
		return JobEvent{}, err
	}
	return event, nil
}

// Encode serializes the event for transmission to a client.
func (e JobEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}
