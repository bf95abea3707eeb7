// Package verify replays a stored event stream against a model of the
// serialized document and reports every event that would not apply.
package verify

import (
	"fmt"

	"github.com/crimson-sun/replay/internal/wire"
)

// Problem is one event that does not apply cleanly.
type Problem struct {
	Index     int    `json:"index"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

func (p Problem) String() string {
	return fmt.Sprintf("event %d (ts %d): %s", p.Index, p.Timestamp, p.Message)
}

// Report summarizes a verified stream.
type Report struct {
	Events        int       `json:"events"`
	Metas         int       `json:"metas"`
	FullSnapshots int       `json:"fullSnapshots"`
	Incrementals  int       `json:"incrementals"`
	Nodes         int       `json:"nodes"`
	Problems      []Problem `json:"problems,omitempty"`
}

// OK reports whether every event applied.
func (r Report) OK() bool { return len(r.Problems) == 0 }

// document tracks which ids exist and how they nest.
type document struct {
	parent   map[int64]int64
	children map[int64][]int64
}

func newDocument() *document {
	return &document{parent: map[int64]int64{}, children: map[int64][]int64{}}
}

func (d *document) has(id int64) bool {
	_, ok := d.parent[id]
	return ok
}

// insert adds n and its subtree under parent. It returns the first id
// that already existed, if any.
func (d *document) insert(parent int64, n wire.Node) (int64, bool) {
	if d.has(n.ID) {
		return n.ID, false
	}
	d.parent[n.ID] = parent
	d.children[parent] = append(d.children[parent], n.ID)
	for _, c := range n.ChildNodes {
		if dup, ok := d.insert(n.ID, c); !ok {
			return dup, false
		}
	}
	return 0, true
}

func (d *document) remove(id int64) {
	for _, c := range d.children[id] {
		d.remove(c)
	}
	p := d.parent[id]
	siblings := d.children[p]
	for i, s := range siblings {
		if s == id {
			d.children[p] = append(siblings[:i:i], siblings[i+1:]...)
			break
		}
	}
	delete(d.children, id)
	delete(d.parent, id)
}

// Events checks that each incremental event applies onto the document
// built by the preceding full snapshot.
func Events(events []wire.Event) Report {
	r := Report{Events: len(events)}
	var doc *document
	var lastTS int64
	for i, e := range events {
		problem := func(format string, args ...any) {
			r.Problems = append(r.Problems, Problem{Index: i, Timestamp: e.Timestamp, Message: fmt.Sprintf(format, args...)})
		}
		if i > 0 && e.Timestamp < lastTS {
			problem("timestamp goes back from %d", lastTS)
		}
		lastTS = e.Timestamp

		switch e.Type {
		case wire.TypeMeta:
			r.Metas++
			if _, err := wire.DecodeMeta(e); err != nil {
				problem("%v", err)
			}
		case wire.TypeFullSnapshot:
			r.FullSnapshots++
			d, err := wire.DecodeFullSnapshot(e)
			if err != nil {
				problem("%v", err)
				doc = nil
				continue
			}
			doc = newDocument()
			if dup, ok := doc.insert(0, d.Node); !ok {
				problem("duplicate node id %d in snapshot", dup)
			}
		case wire.TypeIncremental:
			r.Incrementals++
			m, err := wire.DecodeIncremental(e)
			if err != nil {
				problem("%v", err)
				continue
			}
			if doc == nil {
				problem("incremental event before any full snapshot")
				continue
			}
			apply(doc, m, problem)
		}
	}
	if doc != nil {
		r.Nodes = len(doc.parent)
	}
	return r
}

// apply mirrors the replayer's order: removes, then adds, then text and
// attribute changes.
func apply(doc *document, m wire.MutationData, problem func(string, ...any)) {
	for _, rm := range m.Removes {
		switch {
		case !doc.has(rm.ID):
			// Children of an already removed parent are gone with it.
			if !doc.has(rm.ParentID) {
				continue
			}
			problem("remove of unknown node %d", rm.ID)
		case doc.parent[rm.ID] != rm.ParentID:
			problem("remove of node %d from parent %d, but its parent is %d", rm.ID, rm.ParentID, doc.parent[rm.ID])
		default:
			doc.remove(rm.ID)
		}
	}
	for _, add := range m.Adds {
		if !doc.has(add.ParentID) {
			problem("add of node %d under unknown parent %d", add.Node.ID, add.ParentID)
			continue
		}
		if add.PreviousID != nil && !doc.has(*add.PreviousID) {
			problem("add of node %d after unknown sibling %d", add.Node.ID, *add.PreviousID)
		}
		if dup, ok := doc.insert(add.ParentID, add.Node); !ok {
			problem("add of node %d that already exists", dup)
		}
	}
	for _, t := range m.Texts {
		if !doc.has(t.ID) {
			problem("text change on unknown node %d", t.ID)
		}
	}
	for _, a := range m.Attributes {
		if !doc.has(a.ID) {
			problem("attribute change on unknown node %d", a.ID)
		}
	}
}
