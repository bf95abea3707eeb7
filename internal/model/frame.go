package model

// Frame is one captured snapshot of the screen.
type Frame struct {
	Root        *SnapshotNode
	TimestampMs int64
	Width       int
	Height      int
}

// Flatten returns the tree rooted at root in pre-order (parent before
// children, siblings in order). Returned nodes have Children cleared and
// ParentID set to the id of the node they were found under; the root keeps
// NoParent. Subtrees whose id is not positive are skipped.
func Flatten(root *SnapshotNode) []SnapshotNode {
	if root == nil || root.ID <= 0 {
		return nil
	}

	type entry struct {
		node   *SnapshotNode
		parent NodeID
	}

	var out []SnapshotNode
	stack := []entry{{node: root, parent: NoParent}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := *top.node
		n.ParentID = top.parent
		n.Children = nil
		out = append(out, n)

		// Push in reverse so the first child is popped next.
		for i := len(top.node.Children) - 1; i >= 0; i-- {
			c := &top.node.Children[i]
			if c.ID <= 0 {
				continue
			}
			stack = append(stack, entry{node: c, parent: n.ID})
		}
	}
	return out
}

// Count returns the number of nodes Flatten would return.
func Count(root *SnapshotNode) int {
	if root == nil || root.ID <= 0 {
		return 0
	}
	n := 1
	for i := range root.Children {
		n += Count(&root.Children[i])
	}
	return n
}
