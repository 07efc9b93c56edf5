package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Dispatch outcomes recorded on outbox.events.processed
const (
	OutcomeCompleted = "completed"
	OutcomeRetry     = "retry"
	OutcomeDead      = "dead"
)

// BacklogSource reports outbox row counts per status
type BacklogSource interface {
	CountByStatusNames(ctx context.Context) (map[string]int64, error)
}

// OutboxMetricsSources feeds the observable instruments. Nil fields are skipped.
type OutboxMetricsSources struct {
	Backlog        BacklogSource
	DroppedEffects func() uint64
}

// OutboxMetrics holds the dispatcher's instruments
type OutboxMetrics struct {
	processed    *Counter
	recovered    *Counter
	purged       *Counter
	duration     *Histogram
	registration metric.Registration
}

// NewOutboxMetrics creates the dispatcher instruments on meter. Observable
// instruments are read from src on each collection.
func NewOutboxMetrics(meter metric.Meter, src OutboxMetricsSources) (*OutboxMetrics, error) {
	m := &OutboxMetrics{}
	var err error

	if m.processed, err = NewCounter(meter, "outbox.events.processed", "Outbox events dispatched, by outcome", "{event}"); err != nil {
		return nil, err
	}
	if m.recovered, err = NewCounter(meter, "outbox.events.recovered", "Stale processing rows returned to the queue", "{event}"); err != nil {
		return nil, err
	}
	if m.purged, err = NewCounter(meter, "outbox.events.purged", "Completed rows removed by retention cleanup", "{event}"); err != nil {
		return nil, err
	}
	if m.duration, err = NewHistogram(meter, HistogramOpts{
		Name:        "outbox.handler.duration",
		Description: "Time from claim to commit for one outbox event",
		Unit:        "s",
		Boundaries:  HandlerDurationBuckets,
	}); err != nil {
		return nil, err
	}

	var observables []metric.Observable
	var backlog metric.Int64ObservableGauge
	var dropped metric.Int64ObservableCounter
	if src.Backlog != nil {
		if backlog, err = meter.Int64ObservableGauge("outbox.events.backlog",
			metric.WithDescription("Outbox rows by status"),
			metric.WithUnit("{event}"),
		); err != nil {
			return nil, err
		}
		observables = append(observables, backlog)
	}
	if src.DroppedEffects != nil {
		if dropped, err = meter.Int64ObservableCounter("outbox.side_effects.dropped",
			metric.WithDescription("Side-effect commands dropped by a full relay queue"),
			metric.WithUnit("{command}"),
		); err != nil {
			return nil, err
		}
		observables = append(observables, dropped)
	}
	if len(observables) == 0 {
		return m, nil
	}

	m.registration, err = meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		if src.DroppedEffects != nil {
			o.ObserveInt64(dropped, int64(src.DroppedEffects()))
		}
		if src.Backlog != nil {
			counts, err := src.Backlog.CountByStatusNames(ctx)
			if err != nil {
				return err
			}
			for status, n := range counts {
				o.ObserveInt64(backlog, n, metric.WithAttributes(AttrStatus.String(status)))
			}
		}
		return nil
	}, observables...)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordDispatch records one processed event
func (m *OutboxMetrics) RecordDispatch(ctx context.Context, eventType, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.processed.Inc(ctx, AttrEventType.String(eventType), AttrOutcome.String(outcome))
	m.duration.RecordDuration(ctx, elapsed, AttrEventType.String(eventType), AttrOutcome.String(outcome))
}

// RecordRecovered records rows moved out of a stale processing state
func (m *OutboxMetrics) RecordRecovered(ctx context.Context, n int64) {
	if m == nil || n == 0 {
		return
	}
	m.recovered.Add(ctx, n)
}

// RecordPurged records completed rows removed by retention cleanup
func (m *OutboxMetrics) RecordPurged(ctx context.Context, n int64) {
	if m == nil || n == 0 {
		return
	}
	m.purged.Add(ctx, n)
}

// Close unregisters the observable callback
func (m *OutboxMetrics) Close() error {
	if m == nil || m.registration == nil {
		return nil
	}
	return m.registration.Unregister()
}
