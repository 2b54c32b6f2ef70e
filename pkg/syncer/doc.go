// Package syncer drives one incremental sync run.
//
// A run waits for session credentials, then walks the remote listing newest
// first, one page at a time. Each item is normalized and checked against the
// persisted collection; new records are handed to an events.Notifier. Because
// the listing is sorted by recency, a run stops as soon as it meets
// StopAfterExisting already-captured records in a row, or when the listing is
// exhausted. Only then is a completion notification sent.
//
// Run states:
//
//	AWAITING_CREDENTIALS -> FETCHING_PAGE -> PROCESSING_ITEMS -> FETCHING_PAGE ...
//	                     \-> FAILED        \-> COMPLETED | FAILED
//
// There is no retry and no resume: a failed run is simply triggered again and
// starts at offset 0, relying on deduplication to skip what was captured.
package syncer
