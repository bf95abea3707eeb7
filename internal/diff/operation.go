package diff

import "github.com/crimson-sun/replay/internal/model"

// Operation is one edit produced by Diff: Add, Remove or Update.
type Operation interface {
	// Target is the id of the node the operation touches.
	Target() model.NodeID
	operation()
}

// Add inserts Node under ParentID. PreviousID and NextID are its siblings
// in the new tree (model.NoParent when there is none).
type Add struct {
	ParentID   model.NodeID
	ID         model.NodeID
	PreviousID model.NodeID
	NextID     model.NodeID
	Node       model.SnapshotNode
}

// Remove detaches ID, and everything below it, from ParentID.
type Remove struct {
	ParentID model.NodeID
	ID       model.NodeID
}

// Update replaces the payload of a node that stayed in place.
type Update struct {
	Old model.SnapshotNode
	New model.SnapshotNode
}

func (o Add) Target() model.NodeID    { return o.ID }
func (o Remove) Target() model.NodeID { return o.ID }
func (o Update) Target() model.NodeID { return o.New.ID }

func (Add) operation()    {}
func (Remove) operation() {}
func (Update) operation() {}

// Name returns "add", "remove" or "update".
func Name(op Operation) string {
	switch op.(type) {
	case Add:
		return "add"
	case Remove:
		return "remove"
	case Update:
		return "update"
	default:
		return "unknown"
	}
}
