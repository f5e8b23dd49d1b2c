package events

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	h.Publish(Sample, SampleEvent{Raw: 1498, Ts: 1})

	ev := <-ch
	assert.Equal(t, Sample, ev.Name)
	_, err := uuid.Parse(ev.ID)
	require.NoError(t, err)

	payload, err := DecodeAs[SampleEvent](ev)
	require.NoError(t, err)
	assert.Equal(t, 1498, payload.Raw)
	assert.Nil(t, payload.PH)
}

func TestPublishDropsForSlowSubscribers(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()

	for i := 0; i < 100; i++ {
		h.Publish(Sample, SampleEvent{Raw: i})
	}
	assert.Len(t, ch, cap(ch))

	h.Unsubscribe(ch)
	h.Unsubscribe(ch)
	assert.Equal(t, 0, h.Subscribers())
}

func TestPublishOnNilHub(t *testing.T) {
	var h *EventHub
	assert.NotPanics(t, func() { h.Publish(Sample, SampleEvent{}) })
}

func TestDecodeAsEmpty(t *testing.T) {
	v, err := DecodeAs[CalibrationFitEvent](Event{Name: CalibrationFit})
	require.NoError(t, err)
	assert.Zero(t, v.Slope)
}
