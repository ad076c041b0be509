package usecase

import "strings"

// StreamAggregator collects the fragments of one stream into a running
// full text and republishes that text after every fragment.
type StreamAggregator struct {
	text     strings.Builder
	complete bool
	onUpdate func(full string)
}

// NewStreamAggregator creates an aggregator. onUpdate may be nil.
func NewStreamAggregator(onUpdate func(full string)) *StreamAggregator {
	return &StreamAggregator{onUpdate: onUpdate}
}

// Add appends fragment and publishes the accumulated text. Fragments that
// arrive after Finish are ignored.
func (a *StreamAggregator) Add(fragment string) string {
	if a.complete {
		return a.text.String()
	}
	a.text.WriteString(fragment)
	full := a.text.String()
	if a.onUpdate != nil {
		a.onUpdate(full)
	}
	return full
}

// Finish marks the stream complete and returns the final text.
func (a *StreamAggregator) Finish() string {
	a.complete = true
	return a.text.String()
}

// Text returns the text accumulated so far.
func (a *StreamAggregator) Text() string { return a.text.String() }

// Complete reports whether Finish has been called.
func (a *StreamAggregator) Complete() bool { return a.complete }
