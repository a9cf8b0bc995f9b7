package telemetry

import (
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/WristGo/internal/debug"
)

// Item is one caption/value line of a frame.
type Item struct {
	Caption string `json:"caption"`
	Value   string `json:"value"`
}

// Frame is the set of items published by one Update.
type Frame struct {
	Time  time.Time `json:"time"`
	Items []Item    `json:"items"`
}

// Sink receives published frames.
type Sink interface {
	Publish(f Frame) error
}

// Telemetry accumulates items and publishes them as a frame on Update,
// in the order they were added.
type Telemetry struct {
	sinks   []Sink
	pending []Item
	now     func() time.Time
}

// New returns a Telemetry publishing to sinks.
func New(sinks ...Sink) *Telemetry {
	return &Telemetry{
		sinks: sinks,
		now:   time.Now,
	}
}

// AddSink attaches another sink.
func (t *Telemetry) AddSink(s Sink) {
	t.sinks = append(t.sinks, s)
}

// AddData queues a caption with a value formatted like fmt.Sprintf.
func (t *Telemetry) AddData(caption, format string, args ...interface{}) {
	t.pending = append(t.pending, Item{Caption: caption, Value: fmt.Sprintf(format, args...)})
}

// Update publishes the queued items to every sink and clears the queue.
// Every sink is tried; their errors are joined.
func (t *Telemetry) Update() error {
	f := Frame{Time: t.now(), Items: t.pending}
	t.pending = nil

	var errs []error
	for _, s := range t.sinks {
		if err := s.Publish(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes frames to the debug log at live level.
type LogSink struct{}

func (LogSink) Publish(f Frame) error {
	if !debug.IsEnabled(debug.LevelLive) {
		return nil
	}
	for _, it := range f.Items {
		debug.Live("%s: %s", it.Caption, it.Value)
	}
	return nil
}
