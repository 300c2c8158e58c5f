package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func newTestProducer(w *fakeWriter) *Producer {
	return NewProducerWithWriter(w, "product-events", ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newTestProducer(w)

	err := p.Publish(context.Background(),
		&Event{EventType: "product.created", Key: "p-1", DatasetID: "cec-modules", Data: json.RawMessage(`{"a":1}`)},
		&Event{EventType: "product.updated", Key: "p-2", DatasetID: "cec-modules"},
	)
	require.NoError(t, err)
	require.Len(t, w.messages, 2)

	msg := w.messages[0]
	assert.Equal(t, "product-events", msg.Topic)
	assert.Equal(t, "p-1", string(msg.Key))
	assert.Equal(t, "product.created", header(msg, "event_type"))
	assert.Equal(t, "cec-modules", header(msg, "dataset_id"))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "p-1", decoded.Key)
	assert.False(t, decoded.Timestamp.IsZero())
	assert.JSONEq(t, `{"a":1}`, string(decoded.Data))
}

func TestProducer_PublishNothing(t *testing.T) {
	w := &fakeWriter{err: errors.New("should not be called")}
	assert.NoError(t, newTestProducer(w).Publish(context.Background()))
}

func TestProducer_PublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	err := newTestProducer(w).Publish(context.Background(), &Event{EventType: "product.created", Key: "p-1"})
	assert.EqualError(t, err, "broker down")
}

func TestProducer_Close(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, newTestProducer(w).Close())
	assert.True(t, w.closed)
}
