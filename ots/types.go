package ots

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// ObjectID is the 48-bit object identifier assigned by the object transfer
// service, carried in 64 bits.
type ObjectID uint64

// FirstObjectID is the first ID handed out to registered objects; lower IDs
// are reserved for the directory listing object.
const FirstObjectID ObjectID = 0x100

func (id ObjectID) String() string {
	return fmt.Sprintf("0x%012x", uint64(id))
}

// ObjectType is the 16-bit object type UUID.
type ObjectType uint16

// TypeUnspecified is the "Unspecified" object type.
const TypeUnspecified ObjectType = 0x2ACA

// Property is a capability granted to the peer on an object.
type Property uint8

// Object properties.
const (
	PropDelete Property = iota
	PropExecute
	PropRead
	PropWrite
	PropAppend
	PropTruncate
	PropPatch
	PropMark
)

var propertyNames = map[Property]string{
	PropDelete:   "delete",
	PropExecute:  "execute",
	PropRead:     "read",
	PropWrite:    "write",
	PropAppend:   "append",
	PropTruncate: "truncate",
	PropPatch:    "patch",
	PropMark:     "mark",
}

func (p Property) String() string {
	if name, ok := propertyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("property(%d)", uint8(p))
}

// Properties is the set of properties granted on an object.
type Properties struct {
	granted map[Property]struct{}
}

// NewProperties returns a set holding props.
func NewProperties(props ...Property) Properties {
	set := Properties{granted: make(map[Property]struct{}, len(props))}
	for _, p := range props {
		set.granted[p] = struct{}{}
	}
	return set
}

// Has reports whether p is granted.
func (s Properties) Has(p Property) bool {
	_, ok := s.granted[p]
	return ok
}

// List returns the granted properties in ascending order.
func (s Properties) List() []Property {
	out := make([]Property, 0, len(s.granted))
	for p := range s.granted {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s Properties) String() string {
	names := make([]string, 0, len(s.granted))
	for _, p := range s.List() {
		names = append(names, p.String())
	}
	return strings.Join(names, "|")
}

// Size holds the sizes of an object.
type Size struct {
	// Allocated is the maximum size of the object in bytes
	Allocated uint32

	// Current is the number of bytes written so far
	Current uint32
}

// ObjectDescriptor describes an object offered to the peer.
type ObjectDescriptor struct {
	ID         ObjectID
	Name       string
	Type       ObjectType
	Size       Size
	Properties Properties
}

// AddParam describes an object registered with the service at start-up.
type AddParam struct {
	Size uint32
	Type ObjectType
}

// OACPFeature is an object action control point procedure.
type OACPFeature uint8

// OACP features.
const (
	OACPCreate OACPFeature = iota
	OACPDelete
	OACPChecksum
	OACPExecute
	OACPRead
	OACPWrite
	OACPAppend
	OACPTruncate
	OACPPatch
	OACPAbort
)

// OLCPFeature is an object list control point procedure.
type OLCPFeature uint8

// OLCP features.
const (
	OLCPGoTo OLCPFeature = iota
	OLCPOrder
	OLCPRequestNumber
	OLCPClearMark
)

// Features lists the control point procedures a service supports.
type Features struct {
	OACP []OACPFeature
	OLCP []OLCPFeature
}

// SupportsOACP reports whether f is in the feature list.
func (f Features) SupportsOACP(op OACPFeature) bool {
	for _, o := range f.OACP {
		if o == op {
			return true
		}
	}
	return false
}

// SupportsOLCP reports whether f is in the feature list.
func (f Features) SupportsOLCP(op OLCPFeature) bool {
	for _, o := range f.OLCP {
		if o == op {
			return true
		}
	}
	return false
}

// Handler receives object events from a transport, already parsed.
//
// Transports call a Handler sequentially; a Handler is not required to accept
// concurrent calls for the same connection.
type Handler interface {
	// ObjectCreated is called when the peer creates an object of the
	// requested size. It returns the descriptor to expose to the peer.
	ObjectCreated(ctx context.Context, id ObjectID, size uint32) (*ObjectDescriptor, error)

	// ObjectWrite is called for each chunk written by the peer. remaining is
	// the number of bytes still to come after this chunk. It returns the
	// number of bytes accepted.
	ObjectWrite(ctx context.Context, id ObjectID, offset uint32, data []byte, remaining uint32) (int, error)
}

// Server is the object transfer service a Handler registers with.
type Server interface {
	// Init enables the given features and routes object events to h.
	Init(features Features, h Handler) error

	// AddObject registers an object and returns its ID.
	AddObject(param AddParam) (ObjectID, error)
}
