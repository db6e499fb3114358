package pipeline

import (
	"sync"
)

// lanes runs the two background processing lanes: a medium-priority lane
// for auxiliary per-frame analyses and a low-priority lane for analytics
// bookkeeping. Each lane has its own worker and a bounded queue; a full
// queue drops the task, so neither lane can ever block frame processing,
// which runs on the session worker itself.
type lanes struct {
	medium chan func()
	low    chan func()

	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newLanes(queueDepth int) *lanes {
	if queueDepth <= 0 {
		queueDepth = 8
	}
	l := &lanes{
		medium: make(chan func(), queueDepth),
		low:    make(chan func(), queueDepth),
	}
	l.wg.Add(2)
	go l.run(l.medium)
	go l.run(l.low)
	return l
}

func (l *lanes) run(queue chan func()) {
	defer l.wg.Done()
	for task := range queue {
		task()
	}
}

// tryMedium enqueues an auxiliary analysis task; false means dropped.
func (l *lanes) tryMedium(task func()) bool { return try(l.medium, task) }

// tryLow enqueues an analytics task; false means dropped.
func (l *lanes) tryLow(task func()) bool { return try(l.low, task) }

func try(queue chan func(), task func()) (queued bool) {
	defer func() {
		// Send on a closed queue after session shutdown counts as a drop.
		if recover() != nil {
			queued = false
		}
	}()
	select {
	case queue <- task:
		return true
	default:
		return false
	}
}

// close drains and stops both workers.
func (l *lanes) close() {
	l.closeOnce.Do(func() {
		close(l.medium)
		close(l.low)
	})
	l.wg.Wait()
}
