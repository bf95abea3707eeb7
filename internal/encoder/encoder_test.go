package encoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/replay/internal/diff"
	"github.com/crimson-sun/replay/internal/model"
	"github.com/crimson-sun/replay/internal/wire"
)

func screen() *model.SnapshotNode {
	return &model.SnapshotNode{
		ID:     16,
		Bounds: model.Rect{Width: 390, Height: 844},
		Style:  map[string]string{"background-color": "#fff"},
		Children: []model.SnapshotNode{
			{ID: 17, Kind: model.Text{Content: "Hello"}, Bounds: model.Rect{X: 8, Y: 8.5, Width: 100, Height: 20}},
			{ID: 18, Kind: model.Input{Value: "bob", Hint: "name"}},
			{ID: 0, Kind: model.Text{Content: "malformed"}},
			{ID: 19, Kind: model.Image{Data: "data:,"}},
		},
	}
}

func TestFullSnapshotScaffolding(t *testing.T) {
	e, err := FullSnapshot(100, screen())
	require.NoError(t, err)
	assert.Equal(t, wire.TypeFullSnapshot, e.Type)
	assert.Equal(t, int64(100), e.Timestamp)

	data, err := wire.DecodeFullSnapshot(e)
	require.NoError(t, err)
	doc := data.Node
	assert.Equal(t, wire.NodeDocument, doc.Type)
	require.Len(t, doc.ChildNodes, 1)
	html := doc.ChildNodes[0]
	assert.Equal(t, "html", html.TagName)
	require.Len(t, html.ChildNodes, 2)
	assert.Equal(t, "head", html.ChildNodes[0].TagName)
	body := html.ChildNodes[1]
	assert.Equal(t, wire.BodyID, body.ID)
	require.Len(t, body.ChildNodes, 1)

	root := body.ChildNodes[0]
	assert.Equal(t, int64(16), root.ID)
	assert.Equal(t, "#fff", root.Attributes["background-color"])
	assert.Equal(t, "390px", root.Attributes["width"])
	require.Len(t, root.ChildNodes, 3, "malformed child is skipped")

	label := root.ChildNodes[0]
	assert.Equal(t, "div", label.TagName)
	assert.Equal(t, "8.5px", label.Attributes["top"])
	require.Len(t, label.ChildNodes, 1)
	assert.Equal(t, wire.NodeText, label.ChildNodes[0].Type)
	assert.Equal(t, wire.TextNodeID(17), label.ChildNodes[0].ID)
	assert.Equal(t, "Hello", label.ChildNodes[0].TextContent)

	input := root.ChildNodes[1]
	assert.Equal(t, "input", input.TagName)
	assert.Equal(t, "bob", input.Attributes["value"])
	assert.Equal(t, "name", input.Attributes["placeholder"])

	img := root.ChildNodes[2]
	assert.Equal(t, "img", img.TagName)
	assert.Equal(t, "data:,", img.Attributes["src"])
}

func TestFullSnapshotNilRoot(t *testing.T) {
	e, err := FullSnapshot(1, nil)
	require.NoError(t, err)
	data, err := wire.DecodeFullSnapshot(e)
	require.NoError(t, err)
	assert.Empty(t, data.Node.ChildNodes[0].ChildNodes[1].ChildNodes)
}

func TestEncodingIsDeterministic(t *testing.T) {
	a, err := FullSnapshot(5, screen())
	require.NoError(t, err)
	b, err := FullSnapshot(5, screen())
	require.NoError(t, err)
	assert.Equal(t, string(a.Data), string(b.Data))

	old := model.Flatten(screen())
	next := screen()
	next.Children[0].Kind = model.Text{Content: "Bye"}
	next.Children = append(next.Children, model.SnapshotNode{ID: 40})
	ops := diff.Diff(old, model.Flatten(next))

	x, err := Incremental(6, ops)
	require.NoError(t, err)
	y, err := Incremental(6, ops)
	require.NoError(t, err)
	assert.Equal(t, string(x.Data), string(y.Data))
}

func TestRecordsMapping(t *testing.T) {
	ops := []diff.Operation{
		diff.Remove{ParentID: 16, ID: 20},
		diff.Remove{ParentID: model.NoParent, ID: 16},
		diff.Add{ParentID: model.NoParent, ID: 30, Node: model.SnapshotNode{ID: 30}},
		diff.Add{ParentID: 30, ID: 31, PreviousID: 32, NextID: 33, Node: model.SnapshotNode{ID: 31, Kind: model.Text{Content: "x"}}},
	}
	m := Records(ops)

	assert.Equal(t, []wire.RemoveRecord{{ParentID: 16, ID: 20}, {ParentID: wire.BodyID, ID: 16}}, m.Removes)
	require.Len(t, m.Adds, 2)
	assert.Equal(t, wire.BodyID, m.Adds[0].ParentID)
	assert.Nil(t, m.Adds[0].PreviousID)
	assert.Nil(t, m.Adds[0].NextID)
	require.NotNil(t, m.Adds[1].NextID)
	assert.Equal(t, int64(33), *m.Adds[1].NextID)
	assert.Equal(t, int64(32), *m.Adds[1].PreviousID)
	require.Len(t, m.Adds[1].Node.ChildNodes, 1)
	assert.Equal(t, "x", m.Adds[1].Node.ChildNodes[0].TextContent)
	assert.Empty(t, m.Texts)
	assert.Empty(t, m.Attributes)
}

func TestRecordsUpdateCarriesOnlyChanges(t *testing.T) {
	old := model.SnapshotNode{
		ID:     17,
		Kind:   model.Text{Content: "a"},
		Bounds: model.Rect{Width: 10, Height: 10},
		Style:  map[string]string{"color": "red", "opacity": "1"},
	}
	next := old
	next.Kind = model.Text{Content: "b"}
	next.Bounds.Width = 12
	next.Style = map[string]string{"color": "blue"}

	m := Records([]diff.Operation{diff.Update{Old: old, New: next}})
	require.Len(t, m.Attributes, 1)
	attrs := m.Attributes[0].Attributes
	assert.Len(t, attrs, 3)
	assert.Equal(t, "blue", *attrs["color"])
	assert.Equal(t, "12px", *attrs["width"])
	v, present := attrs["opacity"]
	assert.True(t, present)
	assert.Nil(t, v)

	require.Len(t, m.Texts, 1)
	assert.Equal(t, wire.TextNodeID(17), m.Texts[0].ID)
	assert.Equal(t, "b", *m.Texts[0].Value)
}

func TestRecordsTextOnlyUpdate(t *testing.T) {
	old := model.SnapshotNode{ID: 17, Kind: model.Text{Content: "a"}}
	next := model.SnapshotNode{ID: 17, Kind: model.Text{Content: "b"}}
	m := Records([]diff.Operation{diff.Update{Old: old, New: next}})
	assert.Empty(t, m.Attributes)
	assert.Len(t, m.Texts, 1)
}

func TestMetaEvent(t *testing.T) {
	e, err := Meta(9, "app://x", 10, 20)
	require.NoError(t, err)
	meta, err := wire.DecodeMeta(e)
	require.NoError(t, err)
	assert.Equal(t, wire.MetaData{Href: "app://x", Width: 10, Height: 20}, meta)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "+1 -2 ~0", Describe([]diff.Operation{diff.Remove{}, diff.Remove{}, diff.Add{}}))
}
