// Package accumulator concatenates streamed fragment content per source.
package accumulator

import (
	"strings"

	"github.com/reddiedev/tenext-app/internal/model"
)

// Accumulator holds one growing buffer per source discriminator. The primary
// source is model.PrimarySource. It is not safe for concurrent use; the
// conversation state guards it.
type Accumulator struct {
	buckets map[string]*strings.Builder
	order   []string
}

// New returns an empty accumulator.
func New() *Accumulator {
	return &Accumulator{buckets: make(map[string]*strings.Builder)}
}

// Append adds the fragment's content to its bucket and returns the bucket's
// new length.
func (a *Accumulator) Append(f model.StreamFragment) int {
	b, ok := a.buckets[f.Source]
	if !ok {
		b = &strings.Builder{}
		a.buckets[f.Source] = b
		a.order = append(a.order, f.Source)
	}
	b.WriteString(f.Content)
	return b.Len()
}

// Get returns the accumulated text for source.
func (a *Accumulator) Get(source string) string {
	if b, ok := a.buckets[source]; ok {
		return b.String()
	}
	return ""
}

// Primary returns the accumulated text of the primary source.
func (a *Accumulator) Primary() string {
	return a.Get(model.PrimarySource)
}

// Sources returns the sources seen since the last reset, in first-seen order.
func (a *Accumulator) Sources() []string {
	return append([]string(nil), a.order...)
}

// Snapshot copies every bucket.
func (a *Accumulator) Snapshot() map[string]string {
	out := make(map[string]string, len(a.buckets))
	for source, b := range a.buckets {
		out[source] = b.String()
	}
	return out
}

// Reset empties every bucket.
func (a *Accumulator) Reset() {
	clear(a.buckets)
	a.order = a.order[:0]
}
