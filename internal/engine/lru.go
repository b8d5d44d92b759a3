package engine

const nilSlot int32 = -1

// slot is one arena cell of the recency list. prev points towards the
// most recently used end, next towards the least recently used end.
type slot struct {
	key   string
	value string
	prev  int32
	next  int32
	rev   uint64 // engine version of the last write to this value; 0 if read from disk
}

// recency is an arena-backed doubly linked list with a key index.
// Indices stay valid across insertions and removals, so promotion is O(1)
// without holding pointers into a container.
type recency struct {
	slots []slot
	free  []int32
	index map[string]int32
	head  int32 // most recently used
	tail  int32 // least recently used
}

func newRecency(capacity int) recency {
	prealloc := min(capacity+1, 1<<16)
	return recency{
		slots: make([]slot, 0, prealloc),
		index: make(map[string]int32, prealloc),
		head:  nilSlot,
		tail:  nilSlot,
	}
}

func (r *recency) len() int {
	return len(r.index)
}

func (r *recency) lookup(key string) (int32, bool) {
	idx, ok := r.index[key]
	return idx, ok
}

// insertFront adds a key that is not yet present as most recently used.
func (r *recency) insertFront(key, value string, rev uint64) int32 {
	var idx int32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		r.slots = append(r.slots, slot{})
		idx = int32(len(r.slots) - 1)
	}
	r.slots[idx] = slot{key: key, value: value, rev: rev, prev: nilSlot, next: nilSlot}
	r.index[key] = idx
	r.pushFront(idx)
	return idx
}

func (r *recency) promote(idx int32) {
	if r.head == idx {
		return
	}
	r.unlink(idx)
	r.pushFront(idx)
}

// remove drops the slot and returns its contents.
func (r *recency) remove(idx int32) slot {
	s := r.slots[idx]
	r.unlink(idx)
	delete(r.index, s.key)
	r.slots[idx] = slot{prev: nilSlot, next: nilSlot}
	r.free = append(r.free, idx)
	return s
}

func (r *recency) pushFront(idx int32) {
	s := &r.slots[idx]
	s.prev = nilSlot
	s.next = r.head
	if r.head != nilSlot {
		r.slots[r.head].prev = idx
	}
	r.head = idx
	if r.tail == nilSlot {
		r.tail = idx
	}
}

func (r *recency) unlink(idx int32) {
	s := &r.slots[idx]
	if s.prev != nilSlot {
		r.slots[s.prev].next = s.next
	} else {
		r.head = s.next
	}
	if s.next != nilSlot {
		r.slots[s.next].prev = s.prev
	} else {
		r.tail = s.prev
	}
	s.prev, s.next = nilSlot, nilSlot
}

// reset empties the list, keeping allocated capacity.
func (r *recency) reset() {
	r.slots = r.slots[:0]
	r.free = r.free[:0]
	clear(r.index)
	r.head, r.tail = nilSlot, nilSlot
}
