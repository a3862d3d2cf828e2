//go:build tinygo

/*
Package hal is the tinygo build's hardware wiring: it satisfies every
interface the core packages (sdblock, audio, display) define in terms
of machine peripherals and tinygo.org/x/drivers, and composes the
boot/file-info/stats text the orchestrator hands to orchestrator.UI.

Nothing outside this package imports "machine" or tinygo.org/x/drivers
directly, so fat32, mediafile, audio, display, avsync and orchestrator
stay portable and host-testable.
*/
package hal

import "errors"

var errNotConfigured = errors.New("hal: device not configured")
