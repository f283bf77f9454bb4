package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func event(typ string) ActivityEvent {
	return ActivityEvent{Timestamp: time.Now(), Type: typ}
}

func types(events []ActivityEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestBuffer_DropsOldestAtCapacity(t *testing.T) {
	b := newBuffer(3)

	for _, typ := range []string{"a", "b", "c", "d", "e"} {
		b.add(event(typ))
	}

	assert.Equal(t, []string{"c", "d", "e"}, types(b.pending()))
	assert.Equal(t, 3, b.len())
}

func TestBuffer_AckRemovesOnlyFlushedEvents(t *testing.T) {
	b := newBuffer(10)
	b.add(event("a"))
	b.add(event("b"))

	snapshot := b.pending()
	assert.Len(t, snapshot, 2)

	// Arrives while the flush is in flight.
	b.add(event("c"))

	b.ack(len(snapshot))
	assert.Equal(t, []string{"c"}, types(b.pending()))
}

func TestBuffer_FailedFlushKeepsEvents(t *testing.T) {
	b := newBuffer(10)
	b.add(event("a"))

	// A failed flush never acks; the snapshot is retried as-is.
	first := b.pending()
	second := b.pending()
	assert.Equal(t, types(first), types(second))
	assert.Equal(t, 1, b.len())
}

func TestBuffer_Clear(t *testing.T) {
	b := newBuffer(10)
	b.add(event("a"))
	b.clear()
	assert.Zero(t, b.len())
}
