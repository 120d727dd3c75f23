package outbox

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicapi/libs/kafkax"
)

func TestMessageCarriesEventHeaders(t *testing.T) {
	p := NewPublisher(nil, NewRepository(), slog.New(slog.NewTextHandler(io.Discard, nil)), PublisherConfig{})
	if p.topic != "clinic.appointments.v1" {
		t.Fatalf("unexpected default topic %q", p.topic)
	}

	created := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	msg := p.message(context.Background(), Record{
		EventID:     "0b5f6f7a-1111-4c3a-9d58-5d5b9a7c0001",
		AggregateID: "42",
		EventType:   "appointment.booked.v1",
		Payload:     []byte(`{"id":42}`),
		Traceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
		CreatedAt:   created,
	})

	if string(msg.Key) != "42" || msg.Topic != "clinic.appointments.v1" {
		t.Fatalf("unexpected key/topic %q %q", msg.Key, msg.Topic)
	}
	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID != "0b5f6f7a-1111-4c3a-9d58-5d5b9a7c0001" || meta.EventType != "appointment.booked.v1" || meta.AggregateID != "42" {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if !msg.Time.Equal(created) {
		t.Fatalf("expected message time %v, got %v", created, msg.Time)
	}
}

func TestRunWithoutBrokersReturns(t *testing.T) {
	p := NewPublisher(nil, NewRepository(), slog.New(slog.NewTextHandler(io.Discard, nil)), PublisherConfig{})
	done := make(chan struct{})
	go func() {
		p.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher without brokers should return immediately")
	}
}
