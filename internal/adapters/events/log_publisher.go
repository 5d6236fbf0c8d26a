package events

import (
	"context"

	"github.com/atvirokodosprendimai/shopfloor/internal/core/domain"
	"github.com/sirupsen/logrus"
)

// LogPublisher writes change events to the structured log. It is the
// default sink when no webhook is configured.
type LogPublisher struct {
	log logrus.FieldLogger
}

func NewLogPublisher(log logrus.FieldLogger) *LogPublisher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, event domain.ChangeEvent) error {
	p.log.WithFields(logrus.Fields{
		"event_id":   event.EventID,
		"action":     event.Action,
		"record_id":  event.RecordID,
		"entry_type": event.EntryType,
		"actor":      event.Actor,
		"source":     event.Source,
		"request_id": event.RequestID,
	}).Info("record changed")
	return nil
}
