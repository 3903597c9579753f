package scheduling

import (
	"fmt"
	"strings"
	"time"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/stream"
)

// Publisher receives change notifications. *stream.Stream satisfies it.
type Publisher interface {
	Publish(stream.Change)
}

// Metrics receives operation telemetry. obs.SchedulingMetrics satisfies it.
type Metrics interface {
	ObserveOperation(op, outcome string, d time.Duration)
	ObserveConflict(op string, overridden bool)
	ObserveRollback()
}

// RecurringPolicy decides what a conflicting recurring instance does to its batch.
type RecurringPolicy int

const (
	// PartialWithWarnings persists every instance and reports conflicts per instance.
	PartialWithWarnings RecurringPolicy = iota
	// AllOrNothing aborts the batch on any conflict unless overridden.
	AllOrNothing
)

func (p RecurringPolicy) String() string {
	if p == AllOrNothing {
		return "all_or_nothing"
	}
	return "partial"
}

// ParseRecurringPolicy accepts "partial" and "all_or_nothing".
func ParseRecurringPolicy(s string) (RecurringPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "partial", "partial_with_warnings":
		return PartialWithWarnings, nil
	case "all_or_nothing", "atomic":
		return AllOrNothing, nil
	}
	return 0, fmt.Errorf("unknown recurring policy %q", s)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the time source used for change timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

func WithPublisher(p Publisher) Option {
	return func(c *Coordinator) {
		if p != nil {
			c.pub = p
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(c *Coordinator) {
		if m != nil {
			c.metrics = m
		}
	}
}

func WithRecurringPolicy(p RecurringPolicy) Option {
	return func(c *Coordinator) { c.recurring = p }
}

// WithMaxInstances caps a single recurring expansion.
func WithMaxInstances(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxInstances = n
		}
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(stream.Change) {}

type nopMetrics struct{}

func (nopMetrics) ObserveOperation(string, string, time.Duration) {}
func (nopMetrics) ObserveConflict(string, bool)                   {}
func (nopMetrics) ObserveRollback()                               {}
