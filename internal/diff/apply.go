package diff

import (
	"errors"
	"fmt"
	"slices"

	"github.com/crimson-sun/replay/internal/model"
)

// ErrUnknownNode is returned by Apply when an operation refers to a node
// that is not present.
var ErrUnknownNode = errors.New("unknown node")

type applyNode struct {
	node     model.SnapshotNode
	children []model.NodeID
}

type applyTree struct {
	nodes map[model.NodeID]*applyNode
	roots []model.NodeID
}

// Apply replays ops onto a flattened snapshot and returns the resulting
// flattened snapshot. It mirrors what a replayer does with the encoded
// records and is used to check that Diff output is complete.
func Apply(flat []model.SnapshotNode, ops []Operation) ([]model.SnapshotNode, error) {
	t := &applyTree{nodes: make(map[model.NodeID]*applyNode, len(flat))}
	for _, n := range flat {
		if _, dup := t.nodes[n.ID]; dup {
			continue
		}
		n.Children = nil
		t.nodes[n.ID] = &applyNode{node: n}
		if err := t.insert(n.ParentID, n.ID, lastChild(t, n.ParentID)); err != nil {
			return nil, err
		}
	}

	for _, op := range ops {
		var err error
		switch o := op.(type) {
		case Remove:
			err = t.remove(o)
		case Update:
			err = t.update(o)
		case Add:
			err = t.add(o)
		}
		if err != nil {
			return nil, fmt.Errorf("diff: apply %s %d: %w", Name(op), op.Target(), err)
		}
	}
	return t.flatten(), nil
}

func lastChild(t *applyTree, parent model.NodeID) model.NodeID {
	list := t.roots
	if p, ok := t.nodes[parent]; ok && parent != model.NoParent {
		list = p.children
	}
	if len(list) == 0 {
		return model.NoParent
	}
	return list[len(list)-1]
}

func (t *applyTree) siblings(parent model.NodeID) (*[]model.NodeID, error) {
	if parent == model.NoParent {
		return &t.roots, nil
	}
	p, ok := t.nodes[parent]
	if !ok {
		return nil, fmt.Errorf("parent %d: %w", parent, ErrUnknownNode)
	}
	return &p.children, nil
}

// insert places id after prev among parent's children, or first when prev
// is absent.
func (t *applyTree) insert(parent, id, prev model.NodeID) error {
	list, err := t.siblings(parent)
	if err != nil {
		return err
	}
	at := 0
	if prev != model.NoParent {
		if k := slices.Index(*list, prev); k >= 0 {
			at = k + 1
		}
	}
	*list = slices.Insert(*list, at, id)
	return nil
}

func (t *applyTree) remove(o Remove) error {
	n, ok := t.nodes[o.ID]
	if !ok {
		return fmt.Errorf("node %d: %w", o.ID, ErrUnknownNode)
	}
	if list, err := t.siblings(n.node.ParentID); err == nil {
		*list = slices.DeleteFunc(*list, func(id model.NodeID) bool { return id == o.ID })
	}
	t.drop(o.ID)
	return nil
}

func (t *applyTree) drop(id model.NodeID) {
	n, ok := t.nodes[id]
	if !ok {
		return
	}
	delete(t.nodes, id)
	for _, c := range n.children {
		t.drop(c)
	}
}

func (t *applyTree) update(o Update) error {
	n, ok := t.nodes[o.New.ID]
	if !ok {
		return fmt.Errorf("node %d: %w", o.New.ID, ErrUnknownNode)
	}
	n.node.Kind = o.New.Kind
	n.node.Bounds = o.New.Bounds
	n.node.Style = o.New.Style
	return nil
}

func (t *applyTree) add(o Add) error {
	if _, exists := t.nodes[o.ID]; exists {
		return fmt.Errorf("node %d already present", o.ID)
	}
	n := o.Node
	n.ID = o.ID
	n.ParentID = o.ParentID
	n.Children = nil
	t.nodes[o.ID] = &applyNode{node: n}
	if err := t.insert(o.ParentID, o.ID, o.PreviousID); err != nil {
		delete(t.nodes, o.ID)
		return err
	}
	return nil
}

func (t *applyTree) flatten() []model.SnapshotNode {
	var out []model.SnapshotNode
	var walk func(ids []model.NodeID)
	walk = func(ids []model.NodeID) {
		for _, id := range ids {
			n := t.nodes[id]
			out = append(out, n.node)
			walk(n.children)
		}
	}
	walk(t.roots)
	return out
}
