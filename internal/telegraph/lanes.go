package telegraph

import (
	"log"
	"runtime/debug"
	"sync"
)

// lanes runs submitted work in FIFO order per key. Each busy key owns one
// goroutine that drains its queue and exits once the queue is empty, so
// different keys run in parallel while a key never runs two jobs at once.
type lanes struct {
	mu     sync.Mutex
	queues map[string][]func() // present key = a drain goroutine is running
	wg     sync.WaitGroup
}

func newLanes() *lanes {
	return &lanes{queues: make(map[string][]func())}
}

// submit enqueues fn behind any pending work for key.
func (l *lanes) submit(key string, fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	q, running := l.queues[key]
	l.queues[key] = append(q, fn)
	if !running {
		l.wg.Add(1)
		go l.drain(key)
	}
}

func (l *lanes) drain(key string) {
	defer l.wg.Done()
	for {
		l.mu.Lock()
		q := l.queues[key]
		if len(q) == 0 {
			delete(l.queues, key)
			l.mu.Unlock()
			return
		}
		fn := q[0]
		l.queues[key] = q[1:]
		l.mu.Unlock()

		run(key, fn)
	}
}

// run executes fn, converting a panic into a log line so one bad event
// cannot take the daemon down.
func run(key string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("telegraph: lane %s: panic: %v\n%s", key, r, debug.Stack())
		}
	}()
	fn()
}

// wait blocks until every lane is idle.
func (l *lanes) wait() {
	l.wg.Wait()
}

// busy returns the number of keys with queued or running work.
func (l *lanes) busy() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queues)
}
