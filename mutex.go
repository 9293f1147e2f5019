package uthread

// Mutex is a handle to a mutex owned by a Runtime's Engine. The zero
// value is not usable; obtain one via NewMutex or Runtime.NewMutex.
type Mutex struct {
	rt *Runtime
	id int
}

// NewMutex allocates a mutex on the default Runtime.
func NewMutex() (*Mutex, error) { return defaultRuntime().NewMutex() }

// NewMutex allocates a mutex on r.
func (r *Runtime) NewMutex() (*Mutex, error) {
	id, err := r.eng.MutexInit()
	if err != nil {
		return nil, err
	}
	return &Mutex{rt: r, id: id}, nil
}

// Lock acquires m, blocking the calling thread if it is already held.
func (m *Mutex) Lock() error { return m.rt.eng.MutexLock(m.id) }

// Unlock releases m, waking one waiter (if any) via direct hand-off.
func (m *Mutex) Unlock() error { return m.rt.eng.MutexUnlock(m.id) }

// Destroy is a no-op: mutex ids are never recycled, matching the
// original library's behavior.
func (m *Mutex) Destroy() {}
