package model

// NodeID identifies a UI element across snapshots. It stays stable for as
// long as the element lives.
type NodeID int64

const (
	// NoParent is the parent id of a tree root.
	NoParent NodeID = 0

	// FirstNodeID is the first id handed out to captured elements.
	// Lower ids are reserved for the document scaffolding of full snapshots.
	FirstNodeID NodeID = 16
)

// Rect is an element's frame in screen points.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Kind is the closed set of element payloads. Only the types in this
// package implement it.
type Kind interface {
	// Tag names the variant ("generic", "text", "image", "input").
	Tag() string
	kind()
}

// Generic is a plain container or unrecognised element.
type Generic struct{}

// Text is a label-like element carrying visible text.
type Text struct {
	Content string
}

// Image carries an already-extracted image reference (usually a data URI).
type Image struct {
	Data string
}

// Input is an editable text field.
type Input struct {
	Value string
	Hint  string
}

func (Generic) Tag() string { return "generic" }
func (Text) Tag() string    { return "text" }
func (Image) Tag() string   { return "image" }
func (Input) Tag() string   { return "input" }

func (Generic) kind() {}
func (Text) kind()    {}
func (Image) kind()   {}
func (Input) kind()   {}

// KindOf returns k, or Generic when k is nil.
func KindOf(k Kind) Kind {
	if k == nil {
		return Generic{}
	}
	return k
}

// SnapshotNode is one element of a captured UI tree.
type SnapshotNode struct {
	ID       NodeID
	ParentID NodeID
	Kind     Kind
	Bounds   Rect
	Style    map[string]string
	Children []SnapshotNode
}

// TextContent returns the visible text of the node, if its kind has any.
func (n SnapshotNode) TextContent() (string, bool) {
	if t, ok := n.Kind.(Text); ok {
		return t.Content, true
	}
	return "", false
}
