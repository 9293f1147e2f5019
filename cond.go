package uthread

// Cond is a handle to a condition variable owned by a Runtime's Engine.
// The zero value is not usable; obtain one via NewCond or
// Runtime.NewCond.
type Cond struct {
	rt *Runtime
	id int
}

// NewCond allocates a condition variable on the default Runtime.
func NewCond() (*Cond, error) { return defaultRuntime().NewCond() }

// NewCond allocates a condition variable on r.
func (r *Runtime) NewCond() (*Cond, error) {
	id, err := r.eng.CondInit()
	if err != nil {
		return nil, err
	}
	return &Cond{rt: r, id: id}, nil
}

// Wait releases m, blocks until signaled or broadcast to, then
// reacquires m before returning.
func (c *Cond) Wait(m *Mutex) error { return c.rt.eng.CondWait(c.id, m.id) }

// Signal wakes one thread waiting on c, if any.
func (c *Cond) Signal() error { return c.rt.eng.CondSignal(c.id) }

// Broadcast wakes every thread waiting on c.
func (c *Cond) Broadcast() error { return c.rt.eng.CondBroadcast(c.id) }

// Destroy is a no-op: condition variable ids are never recycled,
// matching the original library's behavior.
func (c *Cond) Destroy() {}
