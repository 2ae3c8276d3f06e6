package domain

import "time"

// Event types emitted to the shell
const (
	EventCandidatesDetected       = "candidatesDetected"
	EventVisionCandidatesDetected = "visionCandidatesDetected"
	EventAlertTriggered           = "alertTriggered"
)

// Event is one message pushed from the core to the shell
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	CreatedAt time.Time   `json:"createdAt"`
}

// CandidatesPayload accompanies candidate events
type CandidatesPayload struct {
	URL        string      `json:"url,omitempty"`
	Candidates []Candidate `json:"candidates"`
}
