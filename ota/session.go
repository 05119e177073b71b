package ota

import (
	"time"

	"github.com/google/uuid"
	"github.com/moffa90/go-otsota/flash"
	"github.com/moffa90/go-otsota/ots"
)

// session is one accepted transfer object.
type session struct {
	id      uuid.UUID
	desc    ots.ObjectDescriptor
	created time.Time

	// stream is created by the first offset-0 chunk
	stream      *flash.StreamWriter
	initialized bool
}

func newSession(id ots.ObjectID, size uint32, name string) *session {
	return &session{
		id: uuid.New(),
		desc: ots.ObjectDescriptor{
			ID:   id,
			Name: name,
			Type: ots.TypeUnspecified,
			Size: ots.Size{
				Allocated: size,
				Current:   0,
			},
			Properties: ots.NewProperties(ots.PropRead, ots.PropWrite),
		},
		created: time.Now(),
	}
}

// prepare binds a fresh stream writer to the staging partition, discarding
// anything written by an earlier start of the same object.
func (s *session) prepare(dev flash.Device, staging flash.Partition, bufSize int) error {
	if !dev.Ready() {
		return flash.ErrNotReady
	}

	size := int64(bufSize)
	if size > staging.Size {
		size = staging.Size
	}

	stream, err := flash.NewStreamWriter(dev, make([]byte, size), staging.Offset, staging.Size)
	if err != nil {
		return err
	}

	s.stream = stream
	s.initialized = true
	s.desc.Size.Current = 0
	return nil
}

// fits reports whether n more bytes stay within the declared size.
func (s *session) fits(n int) bool {
	return uint64(s.desc.Size.Current)+uint64(n) <= uint64(s.desc.Size.Allocated)
}

func (s *session) flushed() int64 {
	if s.stream == nil {
		return 0
	}
	return s.stream.BytesWritten()
}

func (s *session) progress(state State) Progress {
	p := Progress{
		State:        state,
		ObjectID:     s.desc.ID,
		BytesWritten: s.desc.Size.Current,
		TotalBytes:   s.desc.Size.Allocated,
		ElapsedTime:  time.Since(s.created),
	}
	if s.desc.Size.Allocated > 0 {
		p.Percentage = float64(s.desc.Size.Current) / float64(s.desc.Size.Allocated) * 100
	} else if state == StateSuccess {
		p.Percentage = 100
	}
	return p
}
