package sqnsdio

// frameQueue is an unbounded FIFO of owned frames with head insertion.
// Watermarks are applied by its users. Not safe for concurrent use.
type frameQueue struct {
	buf   [][]byte
	head  int
	bytes int
}

func (q *frameQueue) len() int { return len(q.buf) - q.head }

func (q *frameQueue) pushBack(frame []byte) {
	q.buf = append(q.buf, frame)
	q.bytes += len(frame)
}

func (q *frameQueue) pushFront(frame []byte) {
	q.bytes += len(frame)
	if q.head > 0 {
		q.head--
		q.buf[q.head] = frame
		return
	}
	q.buf = append(q.buf, nil)
	copy(q.buf[1:], q.buf)
	q.buf[0] = frame
}

func (q *frameQueue) popFront() (frame []byte, ok bool) {
	if q.len() == 0 {
		return nil, false
	}
	frame = q.buf[q.head]
	q.buf[q.head] = nil
	q.head++
	q.bytes -= len(frame)
	if q.head == len(q.buf) {
		// Reuse storage once empty.
		q.buf = q.buf[:0]
		q.head = 0
	}
	return frame, true
}

// purge drops every frame and returns how many were dropped.
func (q *frameQueue) purge() int {
	n := q.len()
	clear(q.buf)
	q.buf = q.buf[:0]
	q.head = 0
	q.bytes = 0
	return n
}
