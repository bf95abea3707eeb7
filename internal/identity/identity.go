// Package identity assigns stable node ids to live UI elements.
//
// Ids are minted sequentially from model.FirstNodeID and never reused within
// a table, so a recycled element can never be confused with the one it
// replaced.
package identity

import (
	"runtime"
	"sync"
	"weak"

	"github.com/crimson-sun/replay/internal/model"
)

// Table maps comparable element handles to node ids. Entries live until
// Forget is called.
type Table[K comparable] struct {
	mu   sync.Mutex
	next model.NodeID
	ids  map[K]model.NodeID
}

// NewTable returns an empty table.
func NewTable[K comparable]() *Table[K] {
	return &Table[K]{next: model.FirstNodeID, ids: make(map[K]model.NodeID)}
}

// ID returns the id for key, minting one on first sight.
func (t *Table[K]) ID(key K) model.NodeID {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.ids[key]; ok {
		return id
	}
	id := t.next
	t.next++
	t.ids[key] = id
	return id
}

// Lookup returns the id for key without minting.
func (t *Table[K]) Lookup(key K) (model.NodeID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.ids[key]
	return id, ok
}

// Forget drops key. A later ID call for the same key mints a new id.
func (t *Table[K]) Forget(key K) {
	t.mu.Lock()
	delete(t.ids, key)
	t.mu.Unlock()
}

// Len returns the number of live entries.
func (t *Table[K]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ids)
}

// Weak maps element pointers to node ids without keeping the elements
// alive. An entry is dropped once the garbage collector reclaims its element.
type Weak[T any] struct {
	mu   sync.Mutex
	next model.NodeID
	ids  map[weak.Pointer[T]]model.NodeID
}

// NewWeak returns an empty weak table.
func NewWeak[T any]() *Weak[T] {
	return &Weak[T]{next: model.FirstNodeID, ids: make(map[weak.Pointer[T]]model.NodeID)}
}

// ID returns the id for p, minting one on first sight. A nil p has no id
// and yields model.NoParent.
func (w *Weak[T]) ID(p *T) model.NodeID {
	if p == nil {
		return model.NoParent
	}
	wp := weak.Make(p)

	w.mu.Lock()
	defer w.mu.Unlock()
	if id, ok := w.ids[wp]; ok {
		return id
	}
	id := w.next
	w.next++
	w.ids[wp] = id
	runtime.AddCleanup(p, w.forget, wp)
	return id
}

// Lookup returns the id for p without minting.
func (w *Weak[T]) Lookup(p *T) (model.NodeID, bool) {
	if p == nil {
		return model.NoParent, false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	id, ok := w.ids[weak.Make(p)]
	return id, ok
}

// Len returns the number of entries whose elements have not been collected yet.
func (w *Weak[T]) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.ids)
}

func (w *Weak[T]) forget(wp weak.Pointer[T]) {
	w.mu.Lock()
	delete(w.ids, wp)
	w.mu.Unlock()
}
