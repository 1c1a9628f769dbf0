package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-scanning/internal/logger"
	"ms-scanning/internal/models"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

// sliceReader serves queued messages, then blocks until ctx ends.
type sliceReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
}

func (r *sliceReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *sliceReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *sliceReader) Close() error { return nil }

func (r *sliceReader) Committed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func quiet() *logger.Logger { return logger.NewStdoutLogger(io.Discard, logger.FATAL) }

func TestPublishScanRecorded(t *testing.T) {
	w := &recordingWriter{}
	p := &Producer{Writer: w}

	msg := models.ScanRecordedMessage{QRSlotID: 7, TripType: models.TripExit, ClientEventID: "k1", Day: "2025-03-10", Total: 3}
	require.NoError(t, p.PublishScanRecorded(context.Background(), msg))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "7", string(w.msgs[0].Key))

	var decoded models.ScanRecordedMessage
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, msg.Total, decoded.Total)
	assert.Equal(t, models.Day("2025-03-10"), decoded.Day)
}

func TestPublishPropagatesWriterError(t *testing.T) {
	p := &Producer{Writer: &recordingWriter{err: errors.New("broker down")}}
	assert.Error(t, p.PublishScanRecorded(context.Background(), models.ScanRecordedMessage{QRSlotID: 1, ClientEventID: "k"}))
}

func TestHandleMessage(t *testing.T) {
	var got models.OfflineScanMessage
	handler := func(ctx context.Context, m models.OfflineScanMessage) error {
		got = m
		return nil
	}

	err := HandleMessage(context.Background(), kafka.Message{Value: []byte(`{"token":"abc123","client_event_id":"k1"}`)}, handler)
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.Token)
	assert.Nil(t, got.ScannedAt)

	err = HandleMessage(context.Background(), kafka.Message{Value: []byte(`{"token":"abc123","client_event_id":"k2","scanned_at":"2025-03-09T18:30:00Z"}`)}, handler)
	require.NoError(t, err)
	require.NotNil(t, got.ScannedAt)
	assert.True(t, time.Date(2025, 3, 9, 18, 30, 0, 0, time.UTC).Equal(*got.ScannedAt))

	err = HandleMessage(context.Background(), kafka.Message{Value: []byte(`not json`)}, handler)
	assert.ErrorIs(t, err, ErrMalformedMessage)

	err = HandleMessage(context.Background(), kafka.Message{Value: []byte(`{"token":"abc123"}`)}, handler)
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestConsumerCommitsHandledAndMalformedMessages(t *testing.T) {
	reader := &sliceReader{queue: []kafka.Message{
		{Offset: 1, Value: []byte(`{"token":"abc123","client_event_id":"k1"}`)},
		{Offset: 2, Value: []byte(`{bad`)},
		{Offset: 3, Value: []byte(`{"token":"abc123","client_event_id":"k2"}`)},
	}}
	c := NewConsumerWithReader(reader, "scans.offline", quiet())
	c.RetryInterval = time.Millisecond

	var mu sync.Mutex
	attempts := map[string]int{}
	handler := func(ctx context.Context, m models.OfflineScanMessage) error {
		mu.Lock()
		defer mu.Unlock()
		attempts[m.ClientEventID]++
		if m.ClientEventID == "k2" && attempts[m.ClientEventID] < 3 {
			return errors.New("database is locked")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, handler) }()

	assert.Eventually(t, func() bool { return len(reader.Committed()) == 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{1, 2, 3}, reader.Committed())
	mu.Lock()
	assert.Equal(t, 3, attempts["k2"])
	mu.Unlock()
}
