package domain

import (
	"errors"
	"fmt"
	"time"
)

const (
	ActionEdit   = "EDIT"
	ActionDelete = "DELETE"

	DefaultActor = "system"
)

// LogEntry is one immutable audit event. EDIT entries carry OldData and
// NewData, DELETE entries carry Data.
type LogEntry struct {
	Action    string `json:"action"`
	Timestamp string `json:"timestamp"`
	Details   string `json:"details"`
	Actor     string `json:"actor,omitempty"`
	OldData   Record `json:"oldData,omitempty"`
	NewData   Record `json:"newData,omitempty"`
	Data      Record `json:"data,omitempty"`
}

// RecordID returns the id of the record the entry refers to.
func (e LogEntry) RecordID() string {
	switch {
	case e.NewData != nil:
		return e.NewData.ID()
	case e.OldData != nil:
		return e.OldData.ID()
	default:
		return e.Data.ID()
	}
}

func NewEditEntry(oldRec, newRec Record, meta MutationMetadata) LogEntry {
	meta = meta.Normalize()
	return LogEntry{
		Action:    ActionEdit,
		Timestamp: meta.OccurredAt.Format(time.RFC3339Nano),
		Details:   fmt.Sprintf("Edited record %s", newRec.ID()),
		Actor:     meta.Actor,
		OldData:   oldRec.Clone(),
		NewData:   newRec.Clone(),
	}
}

func NewDeleteEntry(rec Record, meta MutationMetadata) LogEntry {
	meta = meta.Normalize()
	return LogEntry{
		Action:    ActionDelete,
		Timestamp: meta.OccurredAt.Format(time.RFC3339Nano),
		Details:   fmt.Sprintf("Deleted record %s", rec.ID()),
		Actor:     meta.Actor,
		Data:      rec.Clone(),
	}
}

type AuditFilter struct {
	Action   string
	RecordID string
	Limit    int
}

var ErrInvalidAction = errors.New("action must be EDIT or DELETE")

func (f AuditFilter) Validate() error {
	switch f.Action {
	case "", ActionEdit, ActionDelete:
		return nil
	default:
		return ErrInvalidAction
	}
}

// Matches reports whether e passes the optional action and record filters.
func (f AuditFilter) Matches(e LogEntry) bool {
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.RecordID != "" && e.RecordID() != f.RecordID {
		return false
	}
	return true
}
