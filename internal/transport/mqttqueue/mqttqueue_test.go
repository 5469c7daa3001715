package mqttqueue

import (
	"context"
	"testing"
)

// These tests exercise the pending-queue bookkeeping directly, without a
// live broker: enqueue is exactly what the subscription handler calls on
// each inbound MQTT message.

func TestNextReturnsFalseWhenEmpty(t *testing.T) {
	q := &Queue{}
	if _, ok, err := q.Next(context.Background()); ok || err != nil {
		t.Fatalf("Next on empty queue = (_, %v, %v), want (_, false, nil)", ok, err)
	}
}

func TestEnqueueThenNextFIFO(t *testing.T) {
	q := &Queue{}
	q.enqueue("sally/presentations", []byte(`{"said":"E1"}`))
	q.enqueue("sally/presentations", []byte(`{"said":"E2"}`))

	n1, ok, err := q.Next(context.Background())
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if string(n1.Body) != `{"said":"E1"}` {
		t.Errorf("first notice body = %s, want E1 payload", n1.Body)
	}
	if n1.Route != "sally/presentations" {
		t.Errorf("Route = %q, want sally/presentations", n1.Route)
	}
	if n1.ID == "" {
		t.Error("expected non-empty notice ID")
	}

	n2, ok, err := q.Next(context.Background())
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if string(n2.Body) != `{"said":"E2"}` {
		t.Errorf("second notice body = %s, want E2 payload", n2.Body)
	}

	if _, ok, _ := q.Next(context.Background()); ok {
		t.Error("expected queue drained after two Next calls")
	}
}

func TestEnqueueCopiesPayload(t *testing.T) {
	q := &Queue{}
	payload := []byte("original")
	q.enqueue("topic", payload)
	payload[0] = 'X'

	n, ok, err := q.Next(context.Background())
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if string(n.Body) != "original" {
		t.Errorf("Body = %q, want %q (mutation of caller slice leaked in)", n.Body, "original")
	}
}

func TestAckIsNoop(t *testing.T) {
	q := &Queue{}
	q.enqueue("topic", []byte("x"))
	n, _, _ := q.Next(context.Background())
	if err := q.Ack(context.Background(), n.ID); err != nil {
		t.Errorf("Ack: %v", err)
	}
}
