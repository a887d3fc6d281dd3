package parallel

import "sync"

// Limiter bounds the number of concurrently processed windows so that peak
// memory stays proportional to the worker count rather than the window count.
type Limiter struct {
	wg    sync.WaitGroup
	slots chan struct{}
}

// NewLimiter creates a limiter admitting at most n concurrent holders.
// n < 1 is treated as 1.
func NewLimiter(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{slots: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free and registers the holder.
func (l *Limiter) Acquire() {
	l.slots <- struct{}{}
	l.wg.Add(1)
}

// Release frees the holder's slot.
func (l *Limiter) Release() {
	<-l.slots
	l.wg.Done()
}

// Wait blocks until every acquired slot has been released.
func (l *Limiter) Wait() {
	l.wg.Wait()
}
