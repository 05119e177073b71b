// Package boot hands a staged firmware image over to the bootloader.
//
// Trigger is the thin adapter the OTA state machine calls once an image has
// been written: it asks the bootloader to test the image on next boot and
// arms a delayed cold reset.
//
//	trigger := boot.NewTrigger(store, boot.RebootFunc(func(t boot.RebootType) {
//	    sysReboot(t)
//	}))
//	if err := trigger.RequestUpgrade(); err != nil {
//	    // the current image will simply boot again
//	}
//	trigger.RebootAfter(2 * time.Second)
//
// Store is a badger-backed stand-in for the bootloader's image trailer, used
// by simulators to carry a pending upgrade across a simulated reset.
package boot
