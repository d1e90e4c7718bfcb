package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.msgs)
}

func TestKafkaPublisherWriteKeysByDriver(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w, nil)
	e := New(TypeRouteClosed, "driver-9", "", map[string]any{"link": "x"})

	require.NoError(t, p.Write(context.Background(), e))
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "driver-9", string(msg.Key))
	assert.Equal(t, "route_closed", string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, e.ID, decoded.ID)
	assert.Equal(t, TypeRouteClosed, decoded.Type)
}

func TestKafkaPublisherRunForwardsBus(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w, nil)
	bus := NewBus()
	sub := bus.Subscribe()

	done := make(chan struct{})
	go func() {
		p.Run(context.Background(), sub)
		close(done)
	}()

	bus.Publish(New(TypeArrival, "d1", "p1", nil))
	bus.Publish(New(TypeProximity, "d1", "p2", nil))
	require.Eventually(t, func() bool { return w.count() == 2 }, time.Second, 5*time.Millisecond)

	bus.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop after bus close")
	}
}

func TestKafkaPublisherRunSurvivesWriteErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewKafkaPublisher(w, nil)
	sub := make(chan Event, 1)
	sub <- New(TypeArrival, "d1", "p1", nil)
	close(sub)
	p.Run(context.Background(), sub)
	assert.Equal(t, 0, w.count())
}
