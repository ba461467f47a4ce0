package sml

import (
	"github.com/solostec/smf/internal/obis"
)

// TreeEvent is what dedicated path handlers emit while walking a
// process-parameter tree (§4.3 "OBIS parameter tree").
type TreeEvent struct {
	Kind  string // e.g. "device-class", "server-id", "ipt-state", "mbus-status", "visible-devices", "firmware"
	Path  obis.Code
	Value Value
}

// handler recognizes a tree rooted at a known path prefix and emits
// structured events for its children.
type handler func(t Tree) []TreeEvent

var pathHandlers map[obis.Code]handler

func init() {
	pathHandlers = map[obis.Code]handler{
		obis.CodeRootDeviceIdent:    readDeviceIdent,
		obis.CodeRootIPTState:       readIPTState,
		obis.CodeRootActiveDevices:  readDeviceList("active-devices"),
		obis.CodeRootVisibleDevices: readDeviceList("visible-devices"),
		obis.CodeRootFirmware:       readFirmware,
	}
}

// WalkTree dispatches t to the registered path handler for t.Name. An
// unrecognized node's own value, if any, is emitted verbatim as a "raw"
// event and its children are walked the same way (§4.3 "Unknown
// subtrees are preserved verbatim").
func WalkTree(t Tree) []TreeEvent {
	for prefix, h := range pathHandlers {
		if prefix.Matches(t.Name) {
			return h(t)
		}
	}
	var events []TreeEvent
	if t.Value != nil {
		events = append(events, TreeEvent{Kind: "raw", Path: t.Name, Value: *t.Value})
	}
	for _, c := range t.Children {
		events = append(events, WalkTree(c)...)
	}
	return events
}

func readDeviceIdent(t Tree) []TreeEvent {
	var events []TreeEvent
	for _, c := range t.Children {
		switch {
		case obis.CodeServerID.Matches(c.Name):
			if c.Value != nil {
				events = append(events, TreeEvent{Kind: "server-id", Path: c.Name, Value: *c.Value})
			}
		default:
			if c.Value != nil {
				events = append(events, TreeEvent{Kind: "device-class", Path: c.Name, Value: *c.Value})
			}
		}
	}
	return events
}

func readIPTState(t Tree) []TreeEvent {
	var events []TreeEvent
	for _, c := range t.Children {
		if c.Value != nil {
			events = append(events, TreeEvent{Kind: "ipt-state", Path: c.Name, Value: *c.Value})
		}
	}
	return events
}

func readDeviceList(kind string) handler {
	return func(t Tree) []TreeEvent {
		var events []TreeEvent
		for _, c := range t.Children {
			if c.Value != nil {
				events = append(events, TreeEvent{Kind: kind, Path: c.Name, Value: *c.Value})
			} else {
				events = append(events, WalkTree(c)...)
			}
		}
		return events
	}
}

func readFirmware(t Tree) []TreeEvent {
	var events []TreeEvent
	for _, c := range t.Children {
		if c.Value != nil {
			events = append(events, TreeEvent{Kind: "firmware", Path: c.Name, Value: *c.Value})
		}
	}
	return events
}

// ReadMBUSStatus extracts the mbus-status event when present at the
// top level of a GetListRes/GetProcParamRes entry set.
func ReadMBUSStatus(entries []ListEntry) (Value, bool) {
	for _, e := range entries {
		if obis.CodeMBUSStatus.Matches(e.ObjName) {
			return e.Value, true
		}
	}
	return Value{}, false
}
