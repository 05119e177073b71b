package protocol

import "github.com/moffa90/go-otsota/ots"

// CreateRequest is the decoded data of a Create command.
type CreateRequest struct {
	// Size is the requested object size in bytes
	Size uint32

	// Type is the requested object type
	Type ots.ObjectType
}

// WriteRequest is the decoded data of a Write command.
type WriteRequest struct {
	// ObjectID is the object being written
	ObjectID ots.ObjectID

	// Offset is the position of Data within the object
	Offset uint32

	// Remaining is the number of bytes the client will send after this chunk
	Remaining uint32

	// Data is the chunk payload. It aliases the frame it was parsed from.
	Data []byte
}
