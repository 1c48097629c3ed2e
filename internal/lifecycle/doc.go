// Package lifecycle guards the host resources a recording holds: the
// keep-awake lease that stops the machine from sleeping or locking, and the
// device releasers registered by the capture layer.
//
// A lease comes from the first available Provider. The native provider runs
// an inhibitor (systemd-inhibit, caffeinate); the fallback loops a near-silent
// audio file through a media player, which most desktops treat as activity.
// Acquisition is best effort and never fails a recording. Guard.Close always
// runs every releaser in reverse order and only logs failures.
package lifecycle
