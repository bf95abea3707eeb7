// Package wire defines the replay event format written to session logs.
//
// Events are rrweb-compatible JSON objects, one per line:
//
//	{"type":3,"timestamp":1700000000000,"data":{...}}
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType is the rrweb event discriminator.
type EventType int

const (
	TypeFullSnapshot EventType = 2
	TypeIncremental  EventType = 3
	TypeMeta         EventType = 4
)

func (t EventType) String() string {
	switch t {
	case TypeFullSnapshot:
		return "full_snapshot"
	case TypeIncremental:
		return "incremental"
	case TypeMeta:
		return "meta"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// SourceMutation is the incremental source for DOM mutations.
const SourceMutation = 0

// NodeType is the rrweb serialized node discriminator.
type NodeType int

const (
	NodeDocument NodeType = 0
	NodeElement  NodeType = 2
	NodeText     NodeType = 3
)

// Ids of the document scaffolding wrapped around every full snapshot.
// Captured elements start at model.FirstNodeID and never collide with them.
const (
	DocumentID int64 = 1
	HTMLID     int64 = 2
	HeadID     int64 = 3
	BodyID     int64 = 4
)

// textIDOffset separates text-node ids from element ids.
const textIDOffset int64 = 1 << 40

// TextNodeID returns the id of the text node holding the content of
// element id.
func TextNodeID(id int64) int64 { return id + textIDOffset }

// Event is one log line.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Node is a serialized element, text or document node.
type Node struct {
	Type        NodeType          `json:"type"`
	ID          int64             `json:"id"`
	TagName     string            `json:"tagName,omitempty"`
	Attributes  map[string]string `json:"attributes,omitzero"`
	ChildNodes  []Node            `json:"childNodes,omitzero"`
	TextContent string            `json:"textContent,omitempty"`
	IsStyle     bool              `json:"isStyle,omitempty"`
}

// Offset is the initial scroll offset of a full snapshot.
type Offset struct {
	Top  int `json:"top"`
	Left int `json:"left"`
}

// MetaData is the payload of a TypeMeta event.
type MetaData struct {
	Href   string `json:"href"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// FullSnapshotData is the payload of a TypeFullSnapshot event.
type FullSnapshotData struct {
	Node          Node   `json:"node"`
	InitialOffset Offset `json:"initialOffset"`
}

// MutationData is the payload of a TypeIncremental event.
type MutationData struct {
	Source     int               `json:"source"`
	Adds       []AddRecord       `json:"adds"`
	Removes    []RemoveRecord    `json:"removes"`
	Texts      []TextRecord      `json:"texts"`
	Attributes []AttributeRecord `json:"attributes"`
}

// Empty reports whether the mutation carries no records.
func (m MutationData) Empty() bool {
	return len(m.Adds) == 0 && len(m.Removes) == 0 && len(m.Texts) == 0 && len(m.Attributes) == 0
}

// AddRecord inserts Node under ParentID. NextID is null when the node is
// the last child.
type AddRecord struct {
	ParentID   int64  `json:"parentId"`
	PreviousID *int64 `json:"previousId,omitempty"`
	NextID     *int64 `json:"nextId"`
	Node       Node   `json:"node"`
}

// RemoveRecord detaches ID from ParentID.
type RemoveRecord struct {
	ParentID int64 `json:"parentId"`
	ID       int64 `json:"id"`
}

// TextRecord replaces the content of a text node. A nil Value clears it.
type TextRecord struct {
	ID    int64   `json:"id"`
	Value *string `json:"value"`
}

// AttributeRecord sets attributes on ID. A nil value removes the attribute.
type AttributeRecord struct {
	ID         int64              `json:"id"`
	Attributes map[string]*string `json:"attributes"`
}

// ErrNoTimestamp is returned by LineTimestamp for lines without one.
var ErrNoTimestamp = errors.New("wire: no timestamp")

// New builds an event with data marshalled as its payload.
func New(typ EventType, timestamp int64, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("wire: marshal %s: %w", typ, err)
	}
	return Event{Type: typ, Timestamp: timestamp, Data: raw}, nil
}

// MarshalLine encodes e as a single JSON line including the trailing newline.
func MarshalLine(e Event) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal event: %w", err)
	}
	return append(b, '\n'), nil
}

// UnmarshalLine decodes one log line. Lines that are not JSON objects or
// have no known type are rejected.
func UnmarshalLine(line []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(line, &e); err != nil {
		return Event{}, fmt.Errorf("wire: unmarshal event: %w", err)
	}
	switch e.Type {
	case TypeFullSnapshot, TypeIncremental, TypeMeta:
	default:
		return Event{}, fmt.Errorf("wire: unmarshal event: unknown type %d", int(e.Type))
	}
	return e, nil
}

// LineTimestamp extracts the timestamp of a log line without decoding its
// payload. It returns ErrNoTimestamp when the line is an object without a
// numeric timestamp.
func LineTimestamp(line []byte) (int64, error) {
	var head struct {
		Timestamp *int64 `json:"timestamp"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return 0, fmt.Errorf("wire: timestamp: %w", err)
	}
	if head.Timestamp == nil {
		return 0, ErrNoTimestamp
	}
	return *head.Timestamp, nil
}

// DecodeMeta decodes the payload of a TypeMeta event.
func DecodeMeta(e Event) (MetaData, error) {
	var d MetaData
	if err := decode(e, TypeMeta, &d); err != nil {
		return MetaData{}, err
	}
	return d, nil
}

// DecodeFullSnapshot decodes the payload of a TypeFullSnapshot event.
func DecodeFullSnapshot(e Event) (FullSnapshotData, error) {
	var d FullSnapshotData
	if err := decode(e, TypeFullSnapshot, &d); err != nil {
		return FullSnapshotData{}, err
	}
	return d, nil
}

// DecodeIncremental decodes the payload of a TypeIncremental event.
func DecodeIncremental(e Event) (MutationData, error) {
	var d MutationData
	if err := decode(e, TypeIncremental, &d); err != nil {
		return MutationData{}, err
	}
	return d, nil
}

func decode(e Event, want EventType, v any) error {
	if e.Type != want {
		return fmt.Errorf("wire: decode: event is %s, not %s", e.Type, want)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("wire: decode %s: %w", want, err)
	}
	return nil
}
