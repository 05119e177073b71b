package ota

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/moffa90/go-otsota/flash"
	"github.com/moffa90/go-otsota/ots"
)

var (
	errClosed         = errors.New("state machine closed")
	errNotInitialized = errors.New("stream not initialized: transfer must start at offset 0")
)

// UpgradeTrigger hands a completed image to the bootloader. boot.Trigger
// implements it.
type UpgradeTrigger interface {
	// RequestUpgrade marks the staged image for a one-time test boot.
	RequestUpgrade() error

	// RebootAfter arms a cold reset after delay.
	RebootAfter(delay time.Duration)
}

// Machine is the transfer state machine. It receives object create and write
// events from a transport, streams the image into the staging partition, and
// triggers the upgrade when the last chunk lands.
//
// At most one transfer is live at a time. Machine is safe for concurrent use,
// but events for one transfer are expected in order.
type Machine struct {
	device  flash.Device
	staging flash.Partition
	trigger UpgradeTrigger
	config  Config

	mu               sync.Mutex
	state            State
	session          *session
	objectID         ots.ObjectID
	unavailable      error
	lastErr          error
	upgradeRequested bool

	// activity holds the live session while it has seen recent events
	activity *ttlcache.Cache[uuid.UUID, ots.ObjectID]
}

var _ ots.Handler = (*Machine)(nil)

// New creates a Machine that stages images into the staging partition of
// device.
//
// Example:
//
//	staging, _ := layout.Lookup(flash.DefaultStagingLabel)
//	trigger := boot.NewTrigger(store, rebooter)
//	m := ota.New(dev, staging, trigger,
//	    ota.WithLogger(logger),
//	    ota.WithRebootDelay(2*time.Second),
//	)
func New(device flash.Device, staging flash.Partition, trigger UpgradeTrigger, opts ...Option) *Machine {
	if device == nil {
		panic("device cannot be nil")
	}
	if trigger == nil {
		panic("trigger cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	m := &Machine{
		device:  device,
		staging: staging,
		trigger: trigger,
		config:  cfg,
	}
	if cfg.IdleTimeout > 0 {
		m.activity = ttlcache.New[uuid.UUID, ots.ObjectID](
			ttlcache.WithTTL[uuid.UUID, ots.ObjectID](cfg.IdleTimeout),
		)
	}
	return m
}

// Features returns the object transfer features the machine relies on.
func (m *Machine) Features() ots.Features {
	return ots.Features{
		OACP: []ots.OACPFeature{ots.OACPRead, ots.OACPWrite, ots.OACPCreate},
		OLCP: []ots.OLCPFeature{ots.OLCPGoTo},
	}
}

// Register initializes srv with the machine as its handler and adds the
// firmware object, sized to the staging partition.
//
// If registration fails the object slot is marked unavailable and every
// create is refused with ResourceUnavailableError.
func (m *Machine) Register(srv ots.Server) (ots.ObjectID, error) {
	if srv == nil {
		return 0, fmt.Errorf("server cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := srv.Init(m.Features(), m); err != nil {
		m.unavailable = err
		m.logError("failed to init object transfer service", "error", err)
		return 0, fmt.Errorf("init object transfer service: %w", err)
	}

	size := m.staging.Size
	if size > math.MaxUint32 {
		size = math.MaxUint32
	}
	id, err := srv.AddObject(ots.AddParam{Size: uint32(size), Type: ots.TypeUnspecified})
	if err != nil {
		m.unavailable = err
		m.logError("failed to add firmware object", "error", err)
		return 0, fmt.Errorf("add firmware object: %w", err)
	}

	m.unavailable = nil
	m.objectID = id
	m.logInfo("firmware object added", "object_id", id.String(), "max_size", size)
	return id, nil
}

// OnObjectCreate accepts a new transfer object of the requested size.
//
// A transfer still in progress is discarded unless WithRejectActiveCreate is
// set. Returns ResourceUnavailableError when the object slot is unavailable,
// a reboot is pending, or an active transfer is protected.
func (m *Machine) OnObjectCreate(ctx context.Context, id ots.ObjectID, size uint32) (*ots.ObjectDescriptor, error) {
	desc, progress, err := m.createObject(ctx, id, size)
	if progress != nil {
		m.reportProgress(*progress)
	}
	return desc, err
}

// OnWriteChunk writes one chunk of the current object. remaining is the number
// of bytes the peer will send after this chunk; zero completes the transfer.
//
// An offset of 0 (re)starts the transfer and prepares the staging region.
// Returns the number of bytes accepted, always len(data) on success. Any flash
// failure fails the transfer; a new create is required to try again.
func (m *Machine) OnWriteChunk(ctx context.Context, id ots.ObjectID, offset uint32, data []byte, remaining uint32) (int, error) {
	n, progress, err := m.writeChunk(ctx, id, offset, data, remaining)
	if progress != nil {
		m.reportProgress(*progress)
	}
	return n, err
}

// ObjectCreated implements ots.Handler.
func (m *Machine) ObjectCreated(ctx context.Context, id ots.ObjectID, size uint32) (*ots.ObjectDescriptor, error) {
	return m.OnObjectCreate(ctx, id, size)
}

// ObjectWrite implements ots.Handler.
func (m *Machine) ObjectWrite(ctx context.Context, id ots.ObjectID, offset uint32, data []byte, remaining uint32) (int, error) {
	return m.OnWriteChunk(ctx, id, offset, data, remaining)
}

// Status returns a snapshot of the machine.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		State:            m.state,
		UpgradeRequested: m.upgradeRequested,
		LastError:        m.lastErr,
	}
	if s := m.session; s != nil {
		st.SessionID = s.id
		st.ObjectID = s.desc.ID
		st.ObjectName = s.desc.Name
		st.DeclaredSize = s.desc.Size.Allocated
		st.BytesAccepted = s.desc.Size.Current
		st.BytesFlushed = s.flushed()
	}
	return st
}

// Close releases the object slot. A transfer in progress is abandoned and
// later creates are refused.
func (m *Machine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.unavailable = errClosed
	if m.state.active() {
		m.state = StateIdle
		m.session = nil
	}
	if m.activity != nil {
		m.activity.DeleteAll()
	}
	return nil
}

func (m *Machine) createObject(ctx context.Context, id ots.ObjectID, size uint32) (*ots.ObjectDescriptor, *Progress, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.logInfo("object created", "object_id", id.String(), "size", size)

	if m.unavailable != nil {
		return nil, nil, &ResourceUnavailableError{Reason: "no object slot", Err: m.unavailable}
	}
	if m.state.terminal() {
		return nil, nil, &ResourceUnavailableError{Reason: "reboot pending"}
	}
	if m.state.active() {
		if m.config.RejectActiveCreate {
			return nil, nil, &ResourceUnavailableError{Reason: "transfer in progress"}
		}
		m.logInfo("discarding abandoned transfer",
			"session", m.session.id.String(),
			"object_id", m.session.desc.ID.String(),
			"bytes", m.session.desc.Size.Current,
		)
	}

	s := newSession(id, size, m.config.ObjectName)
	m.session = s
	m.state = StateAwaitingFirstByte
	m.lastErr = nil
	m.upgradeRequested = false
	m.resetActivity(s)

	m.logInfo("object registered, ready for write", "session", s.id.String())

	desc := s.desc
	progress := s.progress(m.state)
	return &desc, &progress, nil
}

func (m *Machine) writeChunk(ctx context.Context, id ots.ObjectID, offset uint32, data []byte, remaining uint32) (int, *Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logDebug("write request",
		"object_id", id.String(),
		"offset", offset,
		"len", len(data),
		"remaining", remaining,
	)

	if !m.state.active() {
		return 0, nil, &SessionStateError{State: m.state}
	}
	s := m.session

	if err := m.checkActivity(s); err != nil {
		return 0, nil, err
	}
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	switch {
	case offset == 0:
		m.logInfo("initializing flash for new transfer",
			"partition", m.staging.String(),
			"session", s.id.String(),
		)
		if err := s.prepare(m.device, m.staging, m.config.BufferSize); err != nil {
			return 0, nil, m.fail(&DestinationNotReadyError{Partition: m.staging.Label, Err: err})
		}
		m.state = StateStreaming
	case !s.initialized:
		return 0, nil, m.fail(&DestinationNotReadyError{Partition: m.staging.Label, Err: errNotInitialized})
	case m.config.StrictOffsets && offset != s.desc.Size.Current:
		return 0, nil, m.fail(&OffsetMismatchError{Expected: s.desc.Size.Current, Actual: offset})
	}

	if !s.fits(len(data)) {
		return 0, nil, m.fail(&StreamWriteError{Offset: offset, Length: len(data), Err: ErrObjectOverflow})
	}

	last := remaining == 0
	if err := s.stream.Write(data, last); err != nil {
		return 0, nil, m.fail(&StreamWriteError{Offset: offset, Length: len(data), Err: err})
	}
	s.desc.Size.Current += uint32(len(data))

	if last {
		m.finalize(s)
	} else {
		m.touchActivity(s)
	}

	progress := s.progress(m.state)
	return len(data), &progress, nil
}

// finalize hands the image to the bootloader and arms the reboot. The reboot
// is armed even when the upgrade request fails: without a pending request the
// bootloader boots the current image again.
func (m *Machine) finalize(s *session) {
	m.state = StateFinalizing
	m.logInfo("transfer complete, finalizing",
		"object_id", s.desc.ID.String(),
		"bytes", s.desc.Size.Current,
		"flushed", s.flushed(),
		"elapsed", time.Since(s.created).String(),
	)
	if m.activity != nil {
		m.activity.Delete(s.id)
	}

	if err := m.trigger.RequestUpgrade(); err != nil {
		m.lastErr = &UpgradeRequestError{Err: err}
		m.logError("failed to request upgrade, current image will boot again", "error", err)
	} else {
		m.upgradeRequested = true
		m.logInfo("upgrade requested")
	}

	m.logInfo("rebooting", "delay", m.config.RebootDelay.String())
	m.trigger.RebootAfter(m.config.RebootDelay)
	m.state = StateSuccess
}

func (m *Machine) fail(err error) error {
	m.state = StateFailed
	m.lastErr = err
	if m.activity != nil && m.session != nil {
		m.activity.Delete(m.session.id)
	}
	m.logError("transfer failed", "error", err)
	return err
}

func (m *Machine) resetActivity(s *session) {
	if m.activity == nil {
		return
	}
	m.activity.DeleteAll()
	m.activity.Set(s.id, s.desc.ID, ttlcache.DefaultTTL)
}

func (m *Machine) touchActivity(s *session) {
	if m.activity == nil {
		return
	}
	m.activity.Set(s.id, s.desc.ID, ttlcache.DefaultTTL)
}

// checkActivity discards s if it has been idle past the configured timeout.
func (m *Machine) checkActivity(s *session) error {
	if m.activity == nil {
		return nil
	}
	if item := m.activity.Get(s.id); item != nil {
		return nil
	}

	m.logInfo("discarding idle transfer",
		"session", s.id.String(),
		"object_id", s.desc.ID.String(),
		"bytes", s.desc.Size.Current,
	)
	m.state = StateIdle
	m.session = nil
	return &SessionExpiredError{ObjectID: s.desc.ID, Idle: m.config.IdleTimeout}
}

// reportProgress calls the progress callback if configured.
func (m *Machine) reportProgress(progress Progress) {
	if m.config.ProgressCallback != nil {
		m.config.ProgressCallback(progress)
	}
}

// logDebug logs a debug message if a logger is configured.
func (m *Machine) logDebug(msg string, keysAndValues ...interface{}) {
	if m.config.Logger != nil {
		m.config.Logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if a logger is configured.
func (m *Machine) logInfo(msg string, keysAndValues ...interface{}) {
	if m.config.Logger != nil {
		m.config.Logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if a logger is configured.
func (m *Machine) logError(msg string, keysAndValues ...interface{}) {
	if m.config.Logger != nil {
		m.config.Logger.Error(msg, keysAndValues...)
	}
}
