package sml

import (
	"errors"

	"github.com/solostec/smf/internal/obis"
)

// ErrMalformedMessage is returned when a decoded message list does not
// have the expected shape.
var ErrMalformedMessage = errors.New("sml: malformed message")

// ErrUnknownChoice is returned by Decode for a choice code with no
// registered body type. It is returned as a plain error; nothing in
// this package turns it into an UNKNOWN_SML_ID attention message.
var ErrUnknownChoice = errors.New("sml: unknown message choice")

// OpenReq is the session-open request body.
type OpenReq struct {
	CodePage    []byte
	ClientID    []byte
	ReqFileID   []byte
	ServerID    []byte
	Username    []byte
	Password    []byte
	SMLVersion  uint8
}

func (OpenReq) Choice() Choice { return ChoiceOpenReq }
func (b OpenReq) ToValue() Value {
	return List(Octet(b.CodePage), Octet(b.ClientID), Octet(b.ReqFileID),
		Octet(b.ServerID), Octet(b.Username), Octet(b.Password), Uint(8, uint64(b.SMLVersion)))
}

// OpenRes is the session-open response body.
type OpenRes struct {
	CodePage  []byte
	ClientID  []byte
	ReqFileID []byte
	ServerID  []byte
	RefTime   Value
	SMLVersion uint8
}

func (OpenRes) Choice() Choice { return ChoiceOpenRes }
func (b OpenRes) ToValue() Value {
	return List(Octet(b.CodePage), Octet(b.ClientID), Octet(b.ReqFileID),
		Octet(b.ServerID), b.RefTime, Uint(8, uint64(b.SMLVersion)))
}

// CloseReq is the empty session-close request body.
type CloseReq struct{}

func (CloseReq) Choice() Choice   { return ChoiceCloseReq }
func (CloseReq) ToValue() Value   { return List() }

// CloseRes is the session-close response body.
type CloseRes struct{}

func (CloseRes) Choice() Choice { return ChoiceCloseRes }
func (CloseRes) ToValue() Value { return List() }

// GetProfileListReq requests a profile (aggregated readings over a
// time window) for ServerID/Path.
type GetProfileListReq struct {
	ServerID []byte
	Path     obis.Code
	BeginTime Value
	EndTime   Value
}

func (GetProfileListReq) Choice() Choice { return ChoiceGetProfileListReq }
func (b GetProfileListReq) ToValue() Value {
	return List(Octet(b.ServerID), Octet(b.Path.Bytes()), b.BeginTime, b.EndTime)
}

// PeriodEntry is one OBIS-coded reading within a profile-list response.
type PeriodEntry struct {
	ObjName obis.Code
	Value   Value
}

// GetProfileListRes carries a time-stamped set of period entries.
type GetProfileListRes struct {
	ServerID  []byte
	ActTime   Value
	ValTime   Value
	Entries   []PeriodEntry
}

func (GetProfileListRes) Choice() Choice { return ChoiceGetProfileListRes }
func (b GetProfileListRes) ToValue() Value {
	entries := make([]Value, len(b.Entries))
	for i, e := range b.Entries {
		entries[i] = List(Octet(e.ObjName.Bytes()), e.Value)
	}
	return List(Octet(b.ServerID), b.ActTime, b.ValTime, List(entries...))
}

// Tree is the OBIS-coded parameter tree carried by process-parameter
// request/response messages (§4.3).
type Tree struct {
	Name     obis.Code
	Value    *Value
	Children []Tree
}

func (t Tree) toValue() Value {
	var val Value
	if t.Value != nil {
		val = *t.Value
	} else {
		val = Value{Kind: KindNone}
	}
	children := make([]Value, len(t.Children))
	for i, c := range t.Children {
		children[i] = c.toValue()
	}
	return List(Octet(t.Name.Bytes()), val, List(children...))
}

func treeFromValue(v Value) (Tree, error) {
	if v.Kind != KindList || len(v.List) != 3 {
		return Tree{}, ErrMalformedMessage
	}
	name := obis.FromBytes(v.List[0].Octets)
	var val *Value
	if v.List[1].Kind != KindNone {
		cp := v.List[1]
		val = &cp
	}
	var children []Tree
	if v.List[2].Kind == KindList {
		for _, cv := range v.List[2].List {
			c, err := treeFromValue(cv)
			if err != nil {
				return Tree{}, err
			}
			children = append(children, c)
		}
	}
	return Tree{Name: name, Value: val, Children: children}, nil
}

// GetProcParamReq requests the subtree rooted at Path.
type GetProcParamReq struct {
	ServerID []byte
	Path     obis.Code
}

func (GetProcParamReq) Choice() Choice { return ChoiceGetProcParamReq }
func (b GetProcParamReq) ToValue() Value {
	return List(Octet(b.ServerID), Octet(b.Path.Bytes()))
}

// GetProcParamRes carries the response tree.
type GetProcParamRes struct {
	ServerID []byte
	Tree     Tree
}

func (GetProcParamRes) Choice() Choice { return ChoiceGetProcParamRes }
func (b GetProcParamRes) ToValue() Value {
	return List(Octet(b.ServerID), b.Tree.toValue())
}

// SetProcParamReq sets a single leaf in the tree rooted at Path.
type SetProcParamReq struct {
	ServerID []byte
	Path     obis.Code
	Tree     Tree
}

func (SetProcParamReq) Choice() Choice { return ChoiceSetProcParamReq }
func (b SetProcParamReq) ToValue() Value {
	return List(Octet(b.ServerID), Octet(b.Path.Bytes()), b.Tree.toValue())
}

// GetListReq requests a flat list of current values rooted at Path.
type GetListReq struct {
	ServerID []byte
	Path     obis.Code
}

func (GetListReq) Choice() Choice { return ChoiceGetListReq }
func (b GetListReq) ToValue() Value {
	return List(Octet(b.ServerID), Octet(b.Path.Bytes()))
}

// ListEntry is one OBIS-coded leaf in a GetListRes.
type ListEntry struct {
	ObjName obis.Code
	Value   Value
}

// GetListRes is the flat-list response.
type GetListRes struct {
	ServerID []byte
	ListName obis.Code
	ActTime  Value
	Entries  []ListEntry
}

func (GetListRes) Choice() Choice { return ChoiceGetListRes }
func (b GetListRes) ToValue() Value {
	entries := make([]Value, len(b.Entries))
	for i, e := range b.Entries {
		entries[i] = List(Octet(e.ObjName.Bytes()), e.Value)
	}
	return List(Octet(b.ServerID), Octet(b.ListName.Bytes()), b.ActTime, List(entries...))
}

// AttentionRes carries only an OBIS attention code and optional text
// (§3 GLOSSARY "Attention message", §7).
type AttentionRes struct {
	ServerID []byte
	Code     obis.Code
	Text     string
}

func (AttentionRes) Choice() Choice { return ChoiceAttentionRes }
func (b AttentionRes) ToValue() Value {
	return List(Octet(b.ServerID), Octet(b.Code.Bytes()), Octet([]byte(b.Text)))
}

func decodeBody(choice Choice, v Value) (Body, error) {
	if v.Kind != KindList {
		return nil, ErrMalformedMessage
	}
	items := v.List
	switch choice {
	case ChoiceOpenReq:
		if len(items) != 7 {
			return nil, ErrMalformedMessage
		}
		return OpenReq{items[0].Octets, items[1].Octets, items[2].Octets, items[3].Octets,
			items[4].Octets, items[5].Octets, uint8(items[6].Uint)}, nil
	case ChoiceOpenRes:
		if len(items) != 6 {
			return nil, ErrMalformedMessage
		}
		return OpenRes{items[0].Octets, items[1].Octets, items[2].Octets, items[3].Octets,
			items[4], uint8(items[5].Uint)}, nil
	case ChoiceCloseReq:
		return CloseReq{}, nil
	case ChoiceCloseRes:
		return CloseRes{}, nil
	case ChoiceGetProfileListReq:
		if len(items) != 4 {
			return nil, ErrMalformedMessage
		}
		return GetProfileListReq{items[0].Octets, obis.FromBytes(items[1].Octets), items[2], items[3]}, nil
	case ChoiceGetProfileListRes:
		if len(items) != 4 {
			return nil, ErrMalformedMessage
		}
		var entries []PeriodEntry
		for _, ev := range items[3].List {
			if ev.Kind != KindList || len(ev.List) != 2 {
				return nil, ErrMalformedMessage
			}
			entries = append(entries, PeriodEntry{obis.FromBytes(ev.List[0].Octets), ev.List[1]})
		}
		return GetProfileListRes{items[0].Octets, items[1], items[2], entries}, nil
	case ChoiceGetProcParamReq:
		if len(items) != 2 {
			return nil, ErrMalformedMessage
		}
		return GetProcParamReq{items[0].Octets, obis.FromBytes(items[1].Octets)}, nil
	case ChoiceGetProcParamRes:
		if len(items) != 2 {
			return nil, ErrMalformedMessage
		}
		t, err := treeFromValue(items[1])
		if err != nil {
			return nil, err
		}
		return GetProcParamRes{items[0].Octets, t}, nil
	case ChoiceSetProcParamReq:
		if len(items) != 3 {
			return nil, ErrMalformedMessage
		}
		t, err := treeFromValue(items[2])
		if err != nil {
			return nil, err
		}
		return SetProcParamReq{items[0].Octets, obis.FromBytes(items[1].Octets), t}, nil
	case ChoiceGetListReq:
		if len(items) != 2 {
			return nil, ErrMalformedMessage
		}
		return GetListReq{items[0].Octets, obis.FromBytes(items[1].Octets)}, nil
	case ChoiceGetListRes:
		if len(items) != 4 {
			return nil, ErrMalformedMessage
		}
		var entries []ListEntry
		for _, ev := range items[3].List {
			if ev.Kind != KindList || len(ev.List) != 2 {
				return nil, ErrMalformedMessage
			}
			entries = append(entries, ListEntry{obis.FromBytes(ev.List[0].Octets), ev.List[1]})
		}
		return GetListRes{items[0].Octets, obis.FromBytes(items[1].Octets), items[2], entries}, nil
	case ChoiceAttentionRes:
		if len(items) != 3 {
			return nil, ErrMalformedMessage
		}
		return AttentionRes{items[0].Octets, obis.FromBytes(items[1].Octets), string(items[2].Octets)}, nil
	default:
		return nil, ErrUnknownChoice
	}
}
