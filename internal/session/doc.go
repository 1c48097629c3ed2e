// Package session runs recording sessions.
//
// Each Session is driven by one actor goroutine that consumes capture
// frames, one-second ticks, stop requests, and segment resolutions from
// channels. Because sealing a segment at a boundary and handling a stop
// request happen in the same goroutine, they never interleave.
//
// A session moves idle → recording → stopping → idle. While recording, every
// interval the active recorder is sealed, handed to the submission engine
// without waiting, and replaced by the next recorder in the same step. A
// manual stop seals the final segment and waits for that segment alone
// before the lifecycle guard releases capture and the keep-awake lease.
//
// Manager keeps sessions by id, limits how many record at once, and drops
// finished sessions after the retention period.
package session
