package mqtt

import log "github.com/sirupsen/logrus"

// ringBuffer is a fixed-capacity FIFO that holds messages for replay after
// reconnection.
// When full, the oldest message is dropped. Not safe for concurrent use.
type ringBuffer struct {
	buf     []Message
	head    int // next write position
	count   int
	dropped int // messages overwritten since last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{buf: make([]Message, capacity)}
}

func (r *ringBuffer) push(msg Message) {
	if r.count == len(r.buf) {
		if r.dropped == 0 {
			log.Warnf("mqtt: buffer full (%d messages), dropping oldest", len(r.buf))
		}
		r.dropped++
	} else {
		r.count++
	}
	r.buf[r.head] = msg
	r.head = (r.head + 1) % len(r.buf)
}

// drainAll returns buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drainAll() []Message {
	if r.count == 0 {
		return nil
	}
	if r.dropped > 0 {
		log.Warnf("mqtt: %d buffered messages were dropped while disconnected", r.dropped)
	}

	result := make([]Message, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := range result {
		result[i] = r.buf[(start+i)%len(r.buf)]
	}

	r.count = 0
	r.head = 0
	r.dropped = 0
	return result
}

func (r *ringBuffer) len() int {
	return r.count
}
