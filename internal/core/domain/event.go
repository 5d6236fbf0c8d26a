package domain

import "time"

// MutationMetadata describes who performed a mutation and when.
type MutationMetadata struct {
	Actor      string
	Source     string
	RequestID  string
	OccurredAt time.Time
}

func (m MutationMetadata) Normalize() MutationMetadata {
	if m.Actor == "" {
		m.Actor = DefaultActor
	}
	if m.Source == "" {
		m.Source = "api"
	}
	if m.OccurredAt.IsZero() {
		m.OccurredAt = time.Now().UTC()
	}
	m.OccurredAt = m.OccurredAt.UTC()
	return m
}

// ChangeEvent is published after an audited mutation commits.
type ChangeEvent struct {
	EventID   string    `json:"event_id"`
	Action    string    `json:"action"`
	RecordID  string    `json:"record_id"`
	EntryType string    `json:"entry_type,omitempty"`
	Actor     string    `json:"actor"`
	Source    string    `json:"source"`
	RequestID string    `json:"request_id,omitempty"`
	At        time.Time `json:"at"`
	Entry     LogEntry  `json:"entry"`
}
