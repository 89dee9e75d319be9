// Package hub provides the in-memory broadcast channel to connected
// observers.
//
// Every payload published is serialized once and fanned out to all current
// subscribers. Delivery is best-effort: a subscriber whose buffer is full
// misses that payload, and subscribers that connect later never see earlier
// payloads.
package hub
