package sqnsdio

import "testing"

func TestFrameQueueOrder(t *testing.T) {
	var q frameQueue
	q.pushBack([]byte{1})
	q.pushBack([]byte{2})
	q.pushFront([]byte{0})
	q.pushBack([]byte{3, 3})
	if q.len() != 4 || q.bytes != 5 {
		t.Fatalf("len=%d bytes=%d", q.len(), q.bytes)
	}
	f, _ := q.popFront()
	if f[0] != 0 {
		t.Fatal("head insertion not first", f)
	}
	q.pushFront([]byte{9}) // Reuses the slot freed by popFront.
	want := []byte{9, 1, 2, 3}
	for i, w := range want {
		f, ok := q.popFront()
		if !ok || f[0] != w {
			t.Fatalf("pop %d: want %d got %v", i, w, f)
		}
	}
	if _, ok := q.popFront(); ok {
		t.Error("expected empty queue")
	}
	if q.bytes != 0 {
		t.Error("byte count not zero", q.bytes)
	}
}

func TestFrameQueuePurge(t *testing.T) {
	var q frameQueue
	for i := 0; i < 10; i++ {
		q.pushBack(make([]byte, i))
	}
	q.popFront()
	if n := q.purge(); n != 9 {
		t.Error("purged", n)
	}
	if q.len() != 0 || q.bytes != 0 {
		t.Error("queue not empty after purge")
	}
}
