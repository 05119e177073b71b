// Package ots defines the object transfer types shared by the OTA state
// machine and the transports that feed it: object IDs, granted properties,
// object descriptors, control point features, and the Handler/Server contract.
//
// No wire format lives here; a transport decodes its own frames and calls a
// Handler with already-parsed create and write events.
package ots
