package events

import "time"

type Kind string

// Event is the contract every queue item satisfies. Events carry data only;
// all behavior lives in the reducer and the dispatcher.
type Event interface {
	Kind() Kind
	Timestamp() time.Time
	Source() string
}

type Base struct {
	kind      Kind
	timestamp time.Time
	source    string
}

func NewBase(kind Kind, opts ...BaseOption) Base {
	base := Base{kind: kind, timestamp: time.Now(), source: "system"}
	for _, opt := range opts {
		opt(&base)
	}

	return base
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}

func (b Base) Source() string {
	return b.source
}

type BaseOption func(*Base)

// WithTimestamp pins the event to an explicit time instead of time.Now.
// Producers that classify buffered audio use this so silence math stays tied
// to capture time rather than enqueue time.
func WithTimestamp(timestamp time.Time) BaseOption {
	return func(b *Base) { b.timestamp = timestamp }
}

// WithSource labels the producer that raised the event.
func WithSource(source string) BaseOption {
	return func(b *Base) { b.source = source }
}
