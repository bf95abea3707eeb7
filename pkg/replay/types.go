package replay

import (
	"github.com/crimson-sun/replay/internal/debounce"
	"github.com/crimson-sun/replay/internal/mode"
	"github.com/crimson-sun/replay/internal/model"
	"github.com/crimson-sun/replay/internal/wire"
)

// Frame is one capture of the UI hierarchy.
type Frame = model.Frame

// Node is one element of a captured hierarchy.
type Node = model.SnapshotNode

// NodeID identifies a node across frames.
type NodeID = model.NodeID

// Rect is a node's frame in screen points.
type Rect = model.Rect

// Node kinds.
type (
	Generic = model.Generic
	Text    = model.Text
	Image   = model.Image
	Input   = model.Input
)

// Event is one encoded replay event, as stored in the log.
type Event = wire.Event

// Mode is a recording mode.
type Mode = mode.Mode

// Recording modes.
const (
	ModeOff   = mode.Off
	ModeError = mode.Error
	ModeFull  = mode.Full
)

// ParseMode converts "off", "error" or "full" to a Mode.
func ParseMode(s string) (Mode, error) { return mode.Parse(s) }

// Clock drives the trigger debouncer.
type Clock = debounce.Clock
