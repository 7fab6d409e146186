package messaging

import (
	"sync"

	"github.com/segmentio/kafka-go"
)

// offsetTracker lets handlers of one reader finish out of order while offsets
// are committed in order: a partition only advances past an offset once every
// fetched message before it is settled.
type offsetTracker struct {
	mu    sync.Mutex
	parts map[int]*partitionOffsets
}

type partitionOffsets struct {
	pending   []int64
	settled   map[int64]kafka.Message
	committed int64
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{parts: map[int]*partitionOffsets{}}
}

func (t *offsetTracker) part(p int) *partitionOffsets {
	po, ok := t.parts[p]
	if !ok {
		po = &partitionOffsets{settled: map[int64]kafka.Message{}, committed: -1}
		t.parts[p] = po
	}
	return po
}

// fetched records a message in fetch order. Call it before handing the
// message to a handler.
func (t *offsetTracker) fetched(km kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	po := t.part(km.Partition)
	po.pending = append(po.pending, km.Offset)
}

// settle marks km done and, with the lock held, calls commit with the highest
// message whose predecessors are all settled. commit is not called when the
// partition cannot advance.
func (t *offsetTracker) settle(km kafka.Message, commit func(kafka.Message) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	po := t.part(km.Partition)
	po.settled[km.Offset] = km

	var last kafka.Message
	advanced := false
	for len(po.pending) > 0 {
		m, ok := po.settled[po.pending[0]]
		if !ok {
			break
		}
		delete(po.settled, po.pending[0])
		po.pending = po.pending[1:]
		last, advanced = m, true
	}
	if !advanced || last.Offset <= po.committed {
		return nil
	}
	po.committed = last.Offset
	return commit(last)
}

func (t *offsetTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.parts = map[int]*partitionOffsets{}
}
