// Package events defines the ScheduleEvent the core emits after a write,
// and the Publisher capability a refresh adapter may implement. Absence of
// a publisher is valid: it surfaces as a no-op task id, never an error
// (spec.md §6, §9).
package events

import (
	"context"
	"time"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/logging"
)

// Type classifies a ScheduleEvent.
type Type string

const (
	TypePlanItemChanged Type = "PlanItemChanged"
	TypeManualTrigger   Type = "ManualTrigger"
)

// Scope narrows a ScheduleEvent to part of the affected plan; Full
// indicates the whole window was touched.
type Scope struct {
	Full           bool
	Machines       []string
	DateRangeStart *time.Time
	DateRangeEnd   *time.Time
}

// ScheduleEvent is published after a state-changing operation completes.
type ScheduleEvent struct {
	VersionID string
	Type      Type
	Scope     Scope
	Reason    string
}

// Publisher is the optional collaborator that consumes ScheduleEvents to
// refresh a downstream read-model. The core never depends on a consumer
// existing.
type Publisher interface {
	Publish(ctx context.Context, ev ScheduleEvent) (taskID string, err error)
}

// NoopPublisher discards every event and always reports a no-op task id.
type NoopPublisher struct{}

func (NoopPublisher) Publish(_ context.Context, _ ScheduleEvent) (string, error) {
	return "noop", nil
}

// PublishBestEffort publishes ev through pub, logging (never propagating)
// any failure: event publication failing must never fail the caller's
// operation (spec.md §5, §8).
func PublishBestEffort(ctx context.Context, pub Publisher, ev ScheduleEvent) string {
	if pub == nil {
		pub = NoopPublisher{}
	}
	taskID, err := pub.Publish(ctx, ev)
	if err != nil {
		logging.Get(logging.CategoryEvents).Warn("publish %s for version %s failed: %v", ev.Type, ev.VersionID, err)
		return ""
	}
	return taskID
}
