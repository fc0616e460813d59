// internal/circulation/events.go
package circulation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrConcurrencyConflict = errors.New("concurrency conflict: version mismatch")

// Event is a recorded circulation fact.
type Event struct {
	ID            int64               `json:"id"`
	AggregateID   string              `json:"aggregate_id"`
	AggregateType string              `json:"aggregate_type"`
	EventType     string              `json:"event_type"`
	EventData     jsoniter.RawMessage `json:"event_data"`
	Version       int                 `json:"version"`
	CreatedAt     time.Time           `json:"created_at"`
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	return jsoniter.ConfigFastest.Unmarshal(e.EventData, v)
}

// eventLog is an append-only in-memory journal with optimistic concurrency
// per aggregate.
type eventLog struct {
	mu       sync.Mutex
	tracer   trace.Tracer
	events   []Event
	versions map[string]int
	nextID   int64
}

func newEventLog(tracer trace.Tracer) *eventLog {
	return &eventLog{
		tracer:   tracer,
		versions: make(map[string]int),
	}
}

// append records one event if the aggregate is still at expectedVersion.
func (l *eventLog) append(ctx context.Context, aggregateID, aggregateType string, expectedVersion int, eventType string, payload any) (Event, error) {
	_, span := l.tracer.Start(ctx, "eventlog.append",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID),
			attribute.String("aggregate.type", aggregateType),
			attribute.Int("expected.version", expectedVersion),
			attribute.String("event.type", eventType),
		),
	)
	defer span.End()

	data, err := jsoniter.ConfigFastest.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if current := l.versions[aggregateID]; current != expectedVersion {
		span.SetAttributes(
			attribute.Int("actual.version", current),
			attribute.Bool("conflict.detected", true),
		)
		return Event{}, fmt.Errorf("%s %s at version %d, expected %d: %w",
			aggregateType, aggregateID, current, expectedVersion, ErrConcurrencyConflict)
	}

	l.nextID++
	event := Event{
		ID:            l.nextID,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		EventData:     data,
		Version:       expectedVersion + 1,
		CreatedAt:     time.Now().UTC(),
	}
	l.events = append(l.events, event)
	l.versions[aggregateID] = event.Version

	span.SetAttributes(attribute.Int64("event.id", event.ID))
	return event, nil
}

func (l *eventLog) version(aggregateID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.versions[aggregateID]
}

// load returns the events of an aggregate from fromVersion on, in order.
func (l *eventLog) load(aggregateID string, fromVersion int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.AggregateID == aggregateID && e.Version >= fromVersion {
			out = append(out, e)
		}
	}
	return out
}
