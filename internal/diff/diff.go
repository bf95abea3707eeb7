// Package diff computes the edits that turn one flattened snapshot into
// the next, using Heckel's sequence-matching algorithm.
//
// Inputs are pre-order node lists as produced by model.Flatten. Matching is
// by node id. Elements that keep their id but change parent, kind or sibling
// order are expressed as a Remove followed by an Add; there is no move
// operation.
package diff

import "github.com/crimson-sun/replay/internal/model"

// symbol is a Heckel symbol-table entry.
type symbol struct {
	oldCount int
	newCount int
	oldIndex int
}

// Diff returns the operations that transform old into new.
// Removes come first (descending old index), then Updates, then Adds
// (ascending new index, so a parent is always added before its children).
// Identical inputs yield nil.
func Diff(old, new []model.SnapshotNode) []Operation {
	oldMatch, newMatch := match(old, new)
	kept := place(old, new, newMatch)

	var ops []Operation
	for i := len(old) - 1; i >= 0; i-- {
		if j := oldMatch[i]; j >= 0 && kept[j] {
			continue
		}
		ops = append(ops, Remove{ParentID: old[i].ParentID, ID: old[i].ID})
	}

	for j := range new {
		if !kept[j] {
			continue
		}
		o := old[newMatch[j]]
		if Hash(o) != Hash(new[j]) {
			ops = append(ops, Update{Old: o, New: new[j]})
		}
	}

	prev, next := siblings(new)
	for j, n := range new {
		if kept[j] {
			continue
		}
		ops = append(ops, Add{
			ParentID:   n.ParentID,
			ID:         n.ID,
			PreviousID: prev[j],
			NextID:     next[j],
			Node:       n,
		})
	}
	return ops
}

// match runs the five Heckel passes and returns, for every old entry, the
// index of its new partner (or -1), and the reverse mapping.
func match(old, new []model.SnapshotNode) (oldMatch, newMatch []int) {
	table := make(map[model.NodeID]*symbol, len(old)+len(new))
	lookup := func(id model.NodeID) *symbol {
		s, ok := table[id]
		if !ok {
			s = &symbol{oldIndex: -1}
			table[id] = s
		}
		return s
	}

	// Passes 1 and 2: occurrence counts.
	for _, n := range new {
		lookup(n.ID).newCount++
	}
	for i, n := range old {
		s := lookup(n.ID)
		s.oldCount++
		s.oldIndex = i
	}

	oldMatch = make([]int, len(old))
	newMatch = make([]int, len(new))
	for i := range oldMatch {
		oldMatch[i] = -1
	}
	for j := range newMatch {
		newMatch[j] = -1
	}

	// Pass 3: ids that occur exactly once on each side are certain matches.
	for j, n := range new {
		s := table[n.ID]
		if s.oldCount == 1 && s.newCount == 1 {
			newMatch[j] = s.oldIndex
			oldMatch[s.oldIndex] = j
		}
	}

	// Pass 4: extend matched runs forward.
	for j := 0; j+1 < len(new); j++ {
		i := newMatch[j]
		if i < 0 || i+1 >= len(old) {
			continue
		}
		if newMatch[j+1] < 0 && oldMatch[i+1] < 0 && old[i+1].ID == new[j+1].ID {
			newMatch[j+1] = i + 1
			oldMatch[i+1] = j + 1
		}
	}

	// Pass 5: extend matched runs backward.
	for j := len(new) - 1; j > 0; j-- {
		i := newMatch[j]
		if i <= 0 {
			continue
		}
		if newMatch[j-1] < 0 && oldMatch[i-1] < 0 && old[i-1].ID == new[j-1].ID {
			newMatch[j-1] = i - 1
			oldMatch[i-1] = j - 1
		}
	}
	return oldMatch, newMatch
}

// place decides which matched new entries stay where they are. A pair stays
// when it keeps its parent, that parent stayed too, its kind is unchanged,
// and it belongs to the longest run of siblings whose relative order did
// not change. Everything else is re-inserted.
func place(old, new []model.SnapshotNode, newMatch []int) []bool {
	kept := make([]bool, len(new))
	keptID := make(map[model.NodeID]bool)

	children := make(map[model.NodeID][]int)
	for j, n := range new {
		children[n.ParentID] = append(children[n.ParentID], j)
	}

	decided := make(map[model.NodeID]bool)
	decide := func(parent model.NodeID) {
		if decided[parent] {
			return
		}
		decided[parent] = true
		if parent != model.NoParent && !keptID[parent] {
			return
		}

		var cand, order []int
		for _, j := range children[parent] {
			i := newMatch[j]
			if i < 0 || old[i].ParentID != parent {
				continue
			}
			if model.KindOf(old[i].Kind).Tag() != model.KindOf(new[j].Kind).Tag() {
				continue
			}
			cand = append(cand, j)
			order = append(order, i)
		}
		for _, k := range increasingRun(order) {
			j := cand[k]
			kept[j] = true
			keptID[new[j].ID] = true
		}
	}

	// Pre-order guarantees a parent is decided before its children.
	decide(model.NoParent)
	for _, n := range new {
		decide(n.ID)
	}
	return kept
}

// increasingRun returns the positions of a longest strictly increasing
// subsequence of seq, in ascending position order.
func increasingRun(seq []int) []int {
	if len(seq) == 0 {
		return nil
	}
	tails := make([]int, 0, len(seq)) // positions of run tails
	prev := make([]int, len(seq))
	for k, v := range seq {
		lo, hi := 0, len(tails)
		for lo < hi {
			mid := (lo + hi) / 2
			if seq[tails[mid]] < v {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		if lo > 0 {
			prev[k] = tails[lo-1]
		} else {
			prev[k] = -1
		}
		if lo == len(tails) {
			tails = append(tails, k)
		} else {
			tails[lo] = k
		}
	}

	out := make([]int, len(tails))
	for k, p := len(tails)-1, tails[len(tails)-1]; k >= 0; k, p = k-1, prev[p] {
		out[k] = p
	}
	return out
}

// siblings returns, for each entry of a pre-order list, the ids of its
// previous and next sibling.
func siblings(nodes []model.SnapshotNode) (prev, next []model.NodeID) {
	prev = make([]model.NodeID, len(nodes))
	next = make([]model.NodeID, len(nodes))
	last := make(map[model.NodeID]int)
	for j, n := range nodes {
		if k, ok := last[n.ParentID]; ok {
			prev[j] = nodes[k].ID
			next[k] = n.ID
		}
		last[n.ParentID] = j
	}
	return prev, next
}

// Count tallies ops by Name.
func Count(ops []Operation) map[string]int {
	out := make(map[string]int, 3)
	for _, op := range ops {
		out[Name(op)]++
	}
	return out
}

// Targets returns the target ids of ops, in order.
func Targets(ops []Operation) []model.NodeID {
	out := make([]model.NodeID, len(ops))
	for i, op := range ops {
		out[i] = op.Target()
	}
	return out
}
