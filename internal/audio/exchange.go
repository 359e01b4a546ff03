package audio

import "sync"

// Exchange decouples the capture callback from the segment writer with
// two equally-capable batch buffers. The producer appends to the active
// buffer under a short mutex; the consumer swaps the buffers under the
// same mutex and processes the previous active buffer outside it. The
// producer's blocking time is therefore a pointer swap plus an append,
// independent of how long the consumer takes with a drained buffer.
//
// Exchange supports exactly one consumer: the slice returned by Drain
// is reused on the next-but-one call, so it must be fully processed
// before Drain is called again.
type Exchange struct {
	mu       sync.Mutex
	active   []Batch
	standby  []Batch
	notifyCh chan struct{}
}

func NewExchange() *Exchange {
	return &Exchange{
		active:   make([]Batch, 0, 64),
		standby:  make([]Batch, 0, 64),
		notifyCh: make(chan struct{}, 1),
	}
}

// Append adds a batch to the active buffer and wakes the consumer.
// Safe to call from the real-time capture callback.
func (x *Exchange) Append(b Batch) {
	x.mu.Lock()
	x.active = append(x.active, b)
	x.mu.Unlock()

	select {
	case x.notifyCh <- struct{}{}:
	default:
	}
}

// Drain swaps the buffers and returns every batch appended since the
// previous call, in append order. The returned slice is reused by the
// producer after the next call, so it must be fully processed first.
func (x *Exchange) Drain() []Batch {
	x.mu.Lock()
	drained := x.active
	x.active = x.standby[:0]
	x.standby = drained
	x.mu.Unlock()
	return drained
}

// Wakeup returns a channel that receives a token after an Append. It is
// a level signal, not a counter: one token may cover several appends,
// so the consumer drains everything on each wakeup.
func (x *Exchange) Wakeup() <-chan struct{} {
	return x.notifyCh
}
