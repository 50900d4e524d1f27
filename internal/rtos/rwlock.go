package rtos

import (
	"sync"
)

// RWLock is a writer-preferring reader/writer lock keyed by thread identity.
// A thread already holding a read lock may take it again even while a writer
// is waiting, so a reader that re-enters (for example a synchronous handler
// that emits) cannot deadlock behind that writer.
type RWLock struct {
	mu             sync.Mutex
	cond           *sync.Cond
	readers        map[ThreadID]int
	nreaders       int
	writing        bool
	writer         ThreadID
	waitingWriters int
}

// NewRWLock creates an unlocked RWLock.
func NewRWLock() *RWLock {
	l := &RWLock{readers: make(map[ThreadID]int)}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// RLock acquires a read lock.
func (l *RWLock) RLock() {
	id := CurrentThreadID()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.readers[id] == 0 {
		for l.writing || l.waitingWriters > 0 {
			l.cond.Wait()
		}
	}
	l.readers[id]++
	l.nreaders++
}

// RUnlock releases one read lock held by the calling thread.
func (l *RWLock) RUnlock() {
	id := CurrentThreadID()
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.readers[id]
	if n == 0 {
		panic("rtos: RUnlock of unlocked RWLock")
	}
	if n == 1 {
		delete(l.readers, id)
	} else {
		l.readers[id] = n - 1
	}
	l.nreaders--
	if l.nreaders == 0 {
		l.cond.Broadcast()
	}
}

// Lock acquires the write lock.
func (l *RWLock) Lock() {
	id := CurrentThreadID()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.waitingWriters++
	for l.writing || l.nreaders > 0 {
		l.cond.Wait()
	}
	l.waitingWriters--
	l.writing = true
	l.writer = id
}

// Unlock releases the write lock.
func (l *RWLock) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.writing {
		panic("rtos: Unlock of unlocked RWLock")
	}
	l.writing = false
	l.writer = 0
	l.cond.Broadcast()
}

// HoldsRead reports whether the calling thread holds a read lock.
func (l *RWLock) HoldsRead() bool {
	id := CurrentThreadID()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readers[id] > 0
}

// HoldsWrite reports whether the calling thread holds the write lock.
func (l *RWLock) HoldsWrite() bool {
	id := CurrentThreadID()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writing && l.writer == id
}
