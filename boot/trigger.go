package boot

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNoBootloader is returned by Trigger.RequestUpgrade when no bootloader is
// attached. The device can still reboot; it will run the current image.
var ErrNoBootloader = errors.New("no bootloader attached")

// UpgradeMode selects how the bootloader treats a staged image.
type UpgradeMode int

const (
	// UpgradeTest boots the staged image once; it reverts unless the image
	// confirms itself.
	UpgradeTest UpgradeMode = iota

	// UpgradePermanent makes the staged image the permanent image.
	UpgradePermanent
)

func (m UpgradeMode) String() string {
	switch m {
	case UpgradeTest:
		return "test"
	case UpgradePermanent:
		return "permanent"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// RebootType selects the kind of reset.
type RebootType int

const (
	RebootWarm RebootType = iota
	RebootCold
)

func (t RebootType) String() string {
	if t == RebootCold {
		return "cold"
	}
	return "warm"
}

// Requester marks a staged image for the bootloader.
type Requester interface {
	RequestUpgrade(mode UpgradeMode) error
}

// Rebooter resets the device.
type Rebooter interface {
	Reboot(t RebootType)
}

// RebootFunc adapts a function to the Rebooter interface.
type RebootFunc func(t RebootType)

// Reboot calls f(t).
func (f RebootFunc) Reboot(t RebootType) {
	f(t)
}

// Trigger requests a test-mode upgrade and schedules the reset that hands the
// device over to the bootloader.
//
// Trigger is safe for concurrent use.
type Trigger struct {
	requester Requester
	rebooter  Rebooter

	mu    sync.Mutex
	timer *time.Timer
}

// NewTrigger creates a trigger. requester may be nil when the device has no
// bootloader; rebooter is required.
func NewTrigger(requester Requester, rebooter Rebooter) *Trigger {
	if rebooter == nil {
		panic("rebooter cannot be nil")
	}
	return &Trigger{
		requester: requester,
		rebooter:  rebooter,
	}
}

// RequestUpgrade asks the bootloader to try the staged image once.
func (t *Trigger) RequestUpgrade() error {
	if t.requester == nil {
		return ErrNoBootloader
	}
	if err := t.requester.RequestUpgrade(UpgradeTest); err != nil {
		return fmt.Errorf("request %s upgrade: %w", UpgradeTest, err)
	}
	return nil
}

// RebootAfter arms a cold reboot to fire after delay. Only the first call arms
// the timer; the reboot cannot be cancelled once armed.
func (t *Trigger) RebootAfter(delay time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		return
	}
	t.timer = time.AfterFunc(delay, func() {
		t.rebooter.Reboot(RebootCold)
	})
}

// Pending reports whether a reboot has been armed.
func (t *Trigger) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}
