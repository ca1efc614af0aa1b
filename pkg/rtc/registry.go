package rtc

import "sync"

// Handle is a weak reference to a registered connection. It stops resolving
// once the connection is removed, even if its slot is reused.
type Handle struct {
	index      uint32
	generation uint32
}

func (h Handle) IsValid() bool {
	return h.generation != 0
}

type slot struct {
	generation uint32
	conn       *Connection
}

// registry maps connect ids to connections. A single mutex guards both the
// id index and the handle slots.
type registry struct {
	lock  sync.Mutex
	byID  map[string]Handle
	slots []slot
	free  []uint32
}

func newRegistry() *registry {
	return &registry{byID: make(map[string]Handle)}
}

func (r *registry) insert(id string, c *Connection) (Handle, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.byID[id]; ok {
		return Handle{}, ErrAlreadyExists
	}

	var index uint32
	if n := len(r.free); n > 0 {
		index = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		index = uint32(len(r.slots))
		r.slots = append(r.slots, slot{})
	}

	s := &r.slots[index]
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	s.conn = c

	h := Handle{index: index, generation: s.generation}
	r.byID[id] = h
	return h, nil
}

func (r *registry) lookup(h Handle) *Connection {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.lookupLocked(h)
}

func (r *registry) lookupLocked(h Handle) *Connection {
	if !h.IsValid() || int(h.index) >= len(r.slots) {
		return nil
	}
	s := r.slots[h.index]
	if s.generation != h.generation {
		return nil
	}
	return s.conn
}

func (r *registry) find(id string) *Connection {
	r.lock.Lock()
	defer r.lock.Unlock()

	h, ok := r.byID[id]
	if !ok {
		return nil
	}
	return r.lookupLocked(h)
}

// remove unregisters id when match accepts it, a nil match accepts any.
func (r *registry) remove(id string, match func(*Connection) bool) *Connection {
	r.lock.Lock()
	defer r.lock.Unlock()

	h, ok := r.byID[id]
	if !ok {
		return nil
	}
	if match != nil && !match(r.lookupLocked(h)) {
		return nil
	}
	delete(r.byID, id)

	s := &r.slots[h.index]
	c := s.conn
	s.conn = nil
	// bump so outstanding handles go stale
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	r.free = append(r.free, h.index)
	return c
}

func (r *registry) all() []*Connection {
	r.lock.Lock()
	defer r.lock.Unlock()

	conns := make([]*Connection, 0, len(r.byID))
	for _, h := range r.byID {
		if c := r.lookupLocked(h); c != nil {
			conns = append(conns, c)
		}
	}
	return conns
}

func (r *registry) len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.byID)
}
