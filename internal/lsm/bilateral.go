package lsm

import "container/heap"

// pairKey identifies an unordered agent pair, always stored with A < B so
// {X,Y} and {Y,X} map to the same entry.
type pairKey struct {
	A, B string
}

func makePairKey(x, y string) (key pairKey, xIsA bool) {
	if x < y {
		return pairKey{A: x, B: y}, true
	}
	return pairKey{A: y, B: x}, false
}

// pairEntry tracks the two FIFO lists of queued payments between an
// unordered agent pair and their running sums.
type pairEntry struct {
	AtoB       []string // A -> B tx ids, insertion order
	BtoA       []string // B -> A tx ids, insertion order
	sumAtoB    int64
	sumBtoA    int64
	oldestTick int64
	version    int64
}

func (e *pairEntry) offset() int64 {
	if e.sumAtoB < e.sumBtoA {
		return e.sumAtoB
	}
	return e.sumBtoA
}

// readyItem is a snapshot of a pair's ReadyKey at the time it was pushed.
// Staleness is detected by comparing against the live pairEntry's version.
type readyItem struct {
	key        pairKey
	offset     int64
	oldestTick int64
	version    int64
}

type readyHeap []readyItem

func (h readyHeap) Len() int { return len(h) }
func (h readyHeap) Less(i, j int) bool {
	if h[i].offset != h[j].offset {
		return h[i].offset > h[j].offset // highest offset first
	}
	return h[i].oldestTick < h[j].oldestTick // oldest first on tie
}
func (h readyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *readyHeap) Push(x interface{}) {
	*h = append(*h, x.(readyItem))
}
func (h *readyHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// bilateralIndex is the incremental pair index of §4.4: updated in O(log n)
// on every Queue 2 enqueue/dequeue, never rebuilt by scanning the queue.
// Staleness in the ready heap is resolved lazily at pop time, the same
// discipline used by the per-agent deadline index in internal/domain.
type bilateralIndex struct {
	entries map[pairKey]*pairEntry
	ready   readyHeap
}

func newBilateralIndex() *bilateralIndex {
	idx := &bilateralIndex{entries: make(map[pairKey]*pairEntry)}
	heap.Init(&idx.ready)
	return idx
}

// Add records a newly queued payment of amount cents from sender to
// receiver, submitted at tick.
func (idx *bilateralIndex) Add(sender, receiver string, amount, tick int64, txID string) {
	key, aToB := makePairKey(sender, receiver)
	e, ok := idx.entries[key]
	if !ok {
		e = &pairEntry{oldestTick: tick}
		idx.entries[key] = e
	}
	if aToB {
		e.AtoB = append(e.AtoB, txID)
		e.sumAtoB += amount
	} else {
		e.BtoA = append(e.BtoA, txID)
		e.sumBtoA += amount
	}
	if tick < e.oldestTick {
		e.oldestTick = tick
	}
	e.version++
	if off := e.offset(); off > 0 {
		heap.Push(&idx.ready, readyItem{key: key, offset: off, oldestTick: e.oldestTick, version: e.version})
	}
}

// Remove reflects that txID (amount cents, sender->receiver) left Queue 2,
// whether via direct settlement, RTGS processing, or LSM execution.
func (idx *bilateralIndex) Remove(sender, receiver string, amount int64, txID string) {
	key, aToB := makePairKey(sender, receiver)
	e, ok := idx.entries[key]
	if !ok {
		return
	}
	if aToB {
		e.AtoB = removeID(e.AtoB, txID)
		e.sumAtoB -= amount
	} else {
		e.BtoA = removeID(e.BtoA, txID)
		e.sumBtoA -= amount
	}
	e.version++
	idx.Requeue(key)
}

func removeID(ids []string, target string) []string {
	for i, id := range ids {
		if id == target {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// PopBestPair returns the unordered pair with the largest current offset
// (oldest-first on ties), discarding stale heap entries as it goes. It does
// not mutate the pair's lists — callers invoke Remove for each settled tx
// once the offset batch has been executed.
func (idx *bilateralIndex) PopBestPair() (pairKey, *pairEntry, bool) {
	for idx.ready.Len() > 0 {
		top := heap.Pop(&idx.ready).(readyItem)
		e, exists := idx.entries[top.key]
		if !exists || e.version != top.version {
			continue
		}
		if actual := e.offset(); actual <= 0 {
			continue
		}
		return top.key, e, true
	}
	return pairKey{}, nil, false
}

// Requeue pushes key's current ReadyKey if its offset is still positive.
// Remove calls it after every removal, so a pair whose earlier heap entry
// went stale stays selectable.
func (idx *bilateralIndex) Requeue(key pairKey) {
	e, ok := idx.entries[key]
	if !ok {
		return
	}
	if off := e.offset(); off > 0 {
		heap.Push(&idx.ready, readyItem{key: key, offset: off, oldestTick: e.oldestTick, version: e.version})
	}
}
