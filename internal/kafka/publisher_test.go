package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"kasbook/internal/events"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishRecalculated(t *testing.T) {
	w := &fakeWriter{}
	p := &Publisher{writer: w, topic: "ledger"}
	ts := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	err := p.PublishRecalculated(context.Background(), events.LedgerRecalculated{
		Trigger: "archive", Entries: 4, Balance: 10, NetProfit: 3, Timestamp: ts,
	})
	if err != nil {
		t.Fatalf("PublishRecalculated() error = %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "archive" {
		t.Errorf("key = %q, want archive", msg.Key)
	}
	decoded, err := events.LedgerRecalculatedFromJSON(msg.Value)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Entries != 4 || !decoded.Timestamp.Equal(ts) {
		t.Errorf("decoded %+v", decoded)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Errorf("Close() = %v, closed = %v", err, w.closed)
	}
}

func TestPublishRecalculatedError(t *testing.T) {
	boom := errors.New("broker down")
	p := &Publisher{writer: &fakeWriter{err: boom}, topic: "ledger"}
	err := p.PublishRecalculated(context.Background(), events.LedgerRecalculated{Trigger: "recalc"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped broker error, got %v", err)
	}
}
