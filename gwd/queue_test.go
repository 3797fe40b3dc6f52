package gwd

import "testing"

func TestBoundedQueuePushPopOrder(t *testing.T) {
	q := newBoundedQueue(2, 1024)
	if !q.Push([]byte("a")) {
		t.Fatal("Push(a) failed under capacity")
	}
	if !q.Push([]byte("b")) {
		t.Fatal("Push(b) failed under capacity")
	}
	if q.Push([]byte("c")) {
		t.Fatal("Push(c) succeeded past maxItems")
	}

	item, ok := q.Pop()
	if !ok || string(item) != "a" {
		t.Fatalf("Pop = %q, %v, want a, true", item, ok)
	}
	if q.Len() != 1 {
		t.Errorf("Len() = %d, want 1", q.Len())
	}
}

func TestBoundedQueueByteLimit(t *testing.T) {
	q := newBoundedQueue(10, 4)
	if !q.Push([]byte("abcd")) {
		t.Fatal("Push at exactly maxBytes failed")
	}
	if q.Push([]byte("e")) {
		t.Fatal("Push past maxBytes succeeded")
	}
}

func TestBoundedQueuePushFront(t *testing.T) {
	q := newBoundedQueue(10, 1024)
	q.Push([]byte("second"))
	q.PushFront([]byte("first"))

	item, ok := q.Pop()
	if !ok || string(item) != "first" {
		t.Fatalf("Pop after PushFront = %q, want first", item)
	}
}

func TestBoundedQueueDrainAll(t *testing.T) {
	q := newBoundedQueue(10, 1024)
	q.Push([]byte("a"))
	q.Push([]byte("b"))

	drained := q.DrainAll()
	if len(drained) != 2 {
		t.Fatalf("DrainAll returned %d items, want 2", len(drained))
	}
	if q.Len() != 0 || q.Bytes() != 0 {
		t.Errorf("queue not empty after DrainAll: len=%d bytes=%d", q.Len(), q.Bytes())
	}
}

func TestPendingPinFIFOLimit(t *testing.T) {
	f := newPendingPinFIFO(1)
	if !f.Push(PendingPinRequest{Pin: 1}) {
		t.Fatal("Push under limit failed")
	}
	if f.Push(PendingPinRequest{Pin: 2}) {
		t.Fatal("Push past limit succeeded")
	}

	req, ok := f.Pop()
	if !ok || req.Pin != 1 {
		t.Fatalf("Pop = %+v, %v, want pin 1, true", req, ok)
	}
	if f.Len() != 0 {
		t.Errorf("Len() = %d, want 0", f.Len())
	}
	if _, ok := f.Pop(); ok {
		t.Error("Pop on empty FIFO returned ok=true")
	}
}
