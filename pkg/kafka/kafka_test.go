package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type memWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error { return nil }

type memReader struct {
	pending   []kafka.Message
	committed []int64
}

func (r *memReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.pending) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.pending[0]
	r.pending = r.pending[1:]
	return msg, nil
}

func (r *memReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *memReader) Close() error { return nil }

func TestPublishBatch(t *testing.T) {
	w := &memWriter{}
	p := NewProducerWithWriter(w, "runs")
	err := p.PublishBatch(context.Background(), []Event{
		{Key: "q1", Value: map[string]int{"n": 1}, Headers: map[string]string{"run_tag": "bm25"}},
		{Key: "q2", Value: []string{"x"}},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)
	require.Equal(t, "q1", string(w.msgs[0].Key))
	require.JSONEq(t, `{"n":1}`, string(w.msgs[0].Value))
	require.Equal(t, []kafka.Header{{Key: "run_tag", Value: []byte("bm25")}}, w.msgs[0].Headers)

	require.NoError(t, p.PublishBatch(context.Background(), nil))
	w.err = errors.New("broker down")
	require.Error(t, p.PublishBatch(context.Background(), []Event{{Key: "q3", Value: 1}}))
}

func TestDrain(t *testing.T) {
	r := &memReader{pending: []kafka.Message{
		{Offset: 0, Key: []byte("a"), Value: []byte(`{"v":1}`)},
		{Offset: 1, Key: []byte("b"), Value: []byte(`bad`)},
		{Offset: 2, Key: []byte("c"), Value: []byte(`{"v":3}`)},
	}}
	var got []int
	c := NewConsumerWithReader(r, "runs", func(_ context.Context, _ []byte, value []byte) error {
		v, err := DecodeJSON[struct{ V int }](value)
		if err != nil {
			return err
		}
		got = append(got, v.V)
		return nil
	})

	handled, err := c.Drain(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 3, handled)
	require.Equal(t, []int{1, 3}, got)
	require.Equal(t, []int64{0, 2}, r.committed)
}

func TestStartStopsOnCancel(t *testing.T) {
	c := NewConsumerWithReader(&memReader{}, "runs", func(context.Context, []byte, []byte) error { return nil })
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, c.Start(ctx))
}
