package scheduler

// waitFIFO is a singly-linked FIFO of threads blocked on a condition
// variable or a mutex, threaded through Thread.waitNext.
type waitFIFO struct {
	head, tail *Thread
}

func (q *waitFIFO) push(t *Thread) {
	t.waitNext = nil
	if q.tail != nil {
		q.tail.waitNext = t
	} else {
		q.head = t
	}
	q.tail = t
}

func (q *waitFIFO) pop() *Thread {
	t := q.head
	if t == nil {
		return nil
	}
	q.head = t.waitNext
	if q.head == nil {
		q.tail = nil
	}
	t.waitNext = nil
	return t
}

// enqueueReady appends t to the tail of the ready queue.
func (e *Engine) enqueueReady(t *Thread) {
	t.state = StateReady
	t.rqNext = nil
	t.rqPrev = e.tail
	if e.tail != nil {
		e.tail.rqNext = t
	} else {
		e.head = t
	}
	e.tail = t
	e.size++
}

// dequeueReadyHead removes and returns the current head of the ready
// queue (the running thread), or nil if the queue is empty.
func (e *Engine) dequeueReadyHead() *Thread {
	t := e.head
	if t == nil {
		return nil
	}
	e.head = t.rqNext
	if e.head != nil {
		e.head.rqPrev = nil
	} else {
		e.tail = nil
	}
	t.rqNext, t.rqPrev = nil, nil
	e.size--
	return t
}

// appendJoiner adds joiner to the FIFO of threads waiting for target to
// terminate.
func appendJoiner(target, joiner *Thread) {
	joiner.waitNext = nil
	joiner.state = StateWaitingJoin
	if target.joinTail != nil {
		target.joinTail.waitNext = joiner
	} else {
		target.joinHead = joiner
	}
	target.joinTail = joiner
}
