// Package events defines the messages published to Kafka.
package events

import "time"

// Ask outcomes.
const (
	OutcomeAnswered = "answered"
	OutcomeNotReady = "not_ready"
	OutcomeError    = "error"
)

// AskEvent is the audit record of one /ask request.
type AskEvent struct {
	RequestID       string    `json:"request_id"`
	Query           string    `json:"query"`
	K               int       `json:"k"`
	IndexVersion    string    `json:"index_version"`
	Outcome         string    `json:"outcome"`
	Answer          string    `json:"answer,omitempty"`
	ConfidenceScore float64   `json:"confidence_score"`
	SourceIDs       []string  `json:"source_ids,omitempty"`
	RetrievalMs     float64   `json:"retrieval_ms"`
	GenerationMs    float64   `json:"generation_ms"`
	TotalMs         float64   `json:"total_ms"`
	CreatedAt       time.Time `json:"created_at"`
}
