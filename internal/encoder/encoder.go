// Package encoder turns snapshot trees and diff operations into replay
// events. Output depends only on its input: the same tree or operations
// always encode to the same bytes.
package encoder

import (
	"fmt"
	"strconv"

	"github.com/crimson-sun/replay/internal/diff"
	"github.com/crimson-sun/replay/internal/model"
	"github.com/crimson-sun/replay/internal/wire"
)

// Meta encodes the viewport event that precedes every full snapshot.
func Meta(ts int64, href string, width, height int) (wire.Event, error) {
	return wire.New(wire.TypeMeta, ts, wire.MetaData{Href: href, Width: width, Height: height})
}

// FullSnapshot encodes root wrapped in the fixed document scaffolding:
// document → html → (head, body → root).
func FullSnapshot(ts int64, root *model.SnapshotNode) (wire.Event, error) {
	body := element(wire.BodyID, "body")
	if root != nil && root.ID > 0 {
		body.ChildNodes = append(body.ChildNodes, Tree(root))
	}
	html := element(wire.HTMLID, "html")
	html.ChildNodes = append(html.ChildNodes, element(wire.HeadID, "head"), body)

	doc := wire.Node{
		Type:       wire.NodeDocument,
		ID:         wire.DocumentID,
		ChildNodes: []wire.Node{html},
	}
	return wire.New(wire.TypeFullSnapshot, ts, wire.FullSnapshotData{Node: doc})
}

// Incremental encodes ops as a single mutation event.
func Incremental(ts int64, ops []diff.Operation) (wire.Event, error) {
	return wire.New(wire.TypeIncremental, ts, Records(ops))
}

// Tree encodes n and its well-formed descendants.
func Tree(n *model.SnapshotNode) wire.Node {
	out := encodeNode(*n)
	for i := range n.Children {
		c := &n.Children[i]
		if c.ID <= 0 {
			continue
		}
		out.ChildNodes = append(out.ChildNodes, Tree(c))
	}
	return out
}

// Records maps operations onto mutation records, preserving their order
// within each record kind.
func Records(ops []diff.Operation) wire.MutationData {
	m := wire.MutationData{
		Source:     wire.SourceMutation,
		Adds:       []wire.AddRecord{},
		Removes:    []wire.RemoveRecord{},
		Texts:      []wire.TextRecord{},
		Attributes: []wire.AttributeRecord{},
	}
	for _, op := range ops {
		switch o := op.(type) {
		case diff.Add:
			node := o.Node
			node.ID = o.ID
			node.Children = nil
			m.Adds = append(m.Adds, wire.AddRecord{
				ParentID:   parentID(o.ParentID),
				PreviousID: optionalID(o.PreviousID),
				NextID:     optionalID(o.NextID),
				Node:       encodeNode(node),
			})
		case diff.Remove:
			m.Removes = append(m.Removes, wire.RemoveRecord{
				ParentID: parentID(o.ParentID),
				ID:       int64(o.ID),
			})
		case diff.Update:
			if changed := changedAttributes(Attributes(o.Old), Attributes(o.New)); len(changed) > 0 {
				m.Attributes = append(m.Attributes, wire.AttributeRecord{ID: int64(o.New.ID), Attributes: changed})
			}
			oldText, _ := o.Old.TextContent()
			if newText, ok := o.New.TextContent(); ok && newText != oldText {
				m.Texts = append(m.Texts, wire.TextRecord{ID: wire.TextNodeID(int64(o.New.ID)), Value: &newText})
			}
		}
	}
	return m
}

// TagName returns the element tag used for a node kind.
func TagName(k model.Kind) string {
	switch model.KindOf(k).(type) {
	case model.Image:
		return "img"
	case model.Input:
		return "input"
	default:
		return "div"
	}
}

// Attributes returns the wire attributes of n: its style map, its bounds,
// and the payload of image and input kinds.
func Attributes(n model.SnapshotNode) map[string]string {
	attrs := make(map[string]string, len(n.Style)+6)
	for k, v := range n.Style {
		attrs[k] = v
	}
	attrs["left"] = px(n.Bounds.X)
	attrs["top"] = px(n.Bounds.Y)
	attrs["width"] = px(n.Bounds.Width)
	attrs["height"] = px(n.Bounds.Height)

	switch v := model.KindOf(n.Kind).(type) {
	case model.Image:
		attrs["src"] = v.Data
	case model.Input:
		attrs["value"] = v.Value
		if v.Hint != "" {
			attrs["placeholder"] = v.Hint
		}
	}
	return attrs
}

func encodeNode(n model.SnapshotNode) wire.Node {
	out := element(int64(n.ID), TagName(n.Kind))
	out.Attributes = Attributes(n)
	if text, ok := n.TextContent(); ok {
		out.ChildNodes = append(out.ChildNodes, wire.Node{
			Type:        wire.NodeText,
			ID:          wire.TextNodeID(int64(n.ID)),
			TextContent: text,
		})
	}
	return out
}

func element(id int64, tag string) wire.Node {
	return wire.Node{
		Type:       wire.NodeElement,
		ID:         id,
		TagName:    tag,
		Attributes: map[string]string{},
		ChildNodes: []wire.Node{},
	}
}

// changedAttributes returns the entries of next that differ from prev, and
// nil entries for keys that disappeared.
func changedAttributes(prev, next map[string]string) map[string]*string {
	out := make(map[string]*string)
	for k, v := range next {
		if old, ok := prev[k]; !ok || old != v {
			out[k] = &v
		}
	}
	for k := range prev {
		if _, ok := next[k]; !ok {
			out[k] = nil
		}
	}
	return out
}

// parentID maps the root sentinel onto the body element.
func parentID(id model.NodeID) int64 {
	if id == model.NoParent {
		return wire.BodyID
	}
	return int64(id)
}

func optionalID(id model.NodeID) *int64 {
	if id == model.NoParent {
		return nil
	}
	v := int64(id)
	return &v
}

func px(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "px"
}

// Describe summarises ops for debug logging.
func Describe(ops []diff.Operation) string {
	c := diff.Count(ops)
	return fmt.Sprintf("+%d -%d ~%d", c["add"], c["remove"], c["update"])
}
