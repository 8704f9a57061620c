// Package migration copies events from the legacy stream into the current
// one in bounded chunks.
//
// The legacy stream stores every event with its full strings. The job moves
// at most BatchSize events per Tick into a Target, persisting its cursor in
// the same batch as the copied events so a crash never duplicates or skips
// an event. Once the cursor reaches the end of the legacy stream the stream
// is marked retired and later ticks do nothing.
package migration
